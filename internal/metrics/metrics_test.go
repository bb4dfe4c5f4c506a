package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/poflow/internal/core"
)

// value returns the summed value of a counter or gauge family whose labels
// include every pair in match.
func value(t *testing.T, m *Metrics, name string, match map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metric:
		for _, mt := range f.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range mt.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range match {
				if labels[k] != v {
					continue metric
				}
			}
			switch {
			case mt.Counter != nil:
				total += mt.GetCounter().GetValue()
			case mt.Gauge != nil:
				total += mt.GetGauge().GetValue()
			case mt.Histogram != nil:
				total += float64(mt.GetHistogram().GetSampleCount())
			}
		}
	}
	return total
}

func TestObserver(t *testing.T) {
	m := New()

	m.UploadValidated(true, 10, time.Second)
	m.UploadValidated(false, 3, time.Second)
	m.SuggestionsApplied(4, 1)
	m.OrdersCreated(2)
	m.VendorRegistered(true)
	m.VendorRegistered(false)
	m.WorkflowTransition("advance", core.StepCreate)
	m.PDFCleaned(3, 2048)

	tests := []struct {
		name  string
		match map[string]string
		want  float64
	}{
		{"poflow_uploads_validated_total", map[string]string{"result": "valid"}, 1},
		{"poflow_uploads_validated_total", map[string]string{"result": "invalid"}, 1},
		{"poflow_upload_rows_total", nil, 13},
		{"poflow_upload_validation_duration_seconds", nil, 2},
		{"poflow_suggestions_applied_total", map[string]string{"result": "applied"}, 4},
		{"poflow_suggestions_applied_total", map[string]string{"result": "failed"}, 1},
		{"poflow_orders_created_total", nil, 2},
		{"poflow_vendor_registrations_total", map[string]string{"result": "ok"}, 1},
		{"poflow_vendor_registrations_total", map[string]string{"result": "failed"}, 1},
		{"poflow_workflow_transitions_total", map[string]string{"action": "advance", "step": string(core.StepCreate)}, 1},
		{"poflow_pdf_files_cleaned_total", nil, 3},
		{"poflow_pdf_bytes_freed_total", nil, 2048},
	}
	for _, tt := range tests {
		if got := value(t, m, tt.name, tt.match); got != tt.want {
			t.Errorf("%s%v = %g, want %g", tt.name, tt.match, got, tt.want)
		}
	}
}

func TestMiddleware_RoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/workflows/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	})

	for _, path := range []string{"/api/workflows/a", "/api/workflows/b", "/ok"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := value(t, m, "poflow_http_requests_total", map[string]string{"route": "/api/workflows/{id}", "status": "404"}); got != 2 {
		t.Errorf("workflow route count = %g, want 2", got)
	}
	if got := value(t, m, "poflow_http_requests_total", map[string]string{"route": "/ok", "status": "200"}); got != 1 {
		t.Errorf("/ok count = %g, want 1", got)
	}
	if got := value(t, m, "poflow_http_request_duration_seconds", map[string]string{"method": "GET"}); got != 3 {
		t.Errorf("duration samples = %g, want 3", got)
	}
}

func TestWatchUploads(t *testing.T) {
	m := New()
	m.WatchUploads(func() core.UploadLimiterStatus {
		return core.UploadLimiterStatus{Active: 2, Available: 3, MaxConcurrent: 5}
	})

	if got := value(t, m, "poflow_uploads_active", nil); got != 2 {
		t.Errorf("uploads_active = %g, want 2", got)
	}
	if got := value(t, m, "poflow_uploads_available", nil); got != 3 {
		t.Errorf("uploads_available = %g, want 3", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.OrdersCreated(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "poflow_orders_created_total 1") {
		t.Errorf("exposition missing orders counter:\n%s", rec.Body.String())
	}
}
