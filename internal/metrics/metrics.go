// Package metrics exposes Prometheus collectors for the HTTP layer and the
// upload, workflow and PDF operations of core.Service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/poflow/internal/core"
)

const namespace = "poflow"

// Metrics holds every collector. It implements core.Observer.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	uploads          *prometheus.CounterVec
	uploadDuration   prometheus.Histogram
	uploadRows       prometheus.Counter
	suggestions      *prometheus.CounterVec
	ordersCreated    prometheus.Counter
	vendorRegistered *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	pdfFilesCleaned  prometheus.Counter
	pdfBytesFreed    prometheus.Counter
}

// New registers all collectors, plus the Go and process collectors, on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		uploads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_validated_total",
			Help:      "Validated workbook uploads by outcome",
		}, []string{"result"}),
		uploadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_validation_duration_seconds",
			Help:      "Time spent validating an uploaded workbook",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		uploadRows: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_rows_total",
			Help:      "Data rows read from uploaded workbooks",
		}),
		suggestions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggestions_applied_total",
			Help:      "Suggestions applied to upload sessions by outcome",
		}, []string{"result"}),
		ordersCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Purchase orders stored from finalized uploads",
		}),
		vendorRegistered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vendor_registrations_total",
			Help:      "Vendor registration attempts by outcome",
		}, []string{"result"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_transitions_total",
			Help:      "Workflow state changes by action and resulting step",
		}, []string{"action", "step"}),
		pdfFilesCleaned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pdf_files_cleaned_total",
			Help:      "Temporary PDFs removed by cleanup",
		}),
		pdfBytesFreed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pdf_bytes_freed_total",
			Help:      "Bytes freed by PDF cleanup",
		}),
	}
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WatchUploads exports the upload limiter state as gauges.
func (m *Metrics) WatchUploads(status func() core.UploadLimiterStatus) {
	f := promauto.With(m.registry)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uploads_active",
		Help:      "Upload validations currently running",
	}, func() float64 { return float64(status().Active) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uploads_available",
		Help:      "Free upload validation slots",
	}, func() float64 { return float64(status().Available) })
}

// Middleware records request count and latency per chi route pattern.
// Unmatched routes are labelled "unmatched" to bound cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

func (m *Metrics) UploadValidated(valid bool, rows int, d time.Duration) {
	result := "valid"
	if !valid {
		result = "invalid"
	}
	m.uploads.WithLabelValues(result).Inc()
	m.uploadDuration.Observe(d.Seconds())
	m.uploadRows.Add(float64(rows))
}

func (m *Metrics) SuggestionsApplied(applied, failed int) {
	m.suggestions.WithLabelValues("applied").Add(float64(applied))
	m.suggestions.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) OrdersCreated(n int) {
	m.ordersCreated.Add(float64(n))
}

func (m *Metrics) VendorRegistered(ok bool) {
	m.vendorRegistered.WithLabelValues(outcome(ok)).Inc()
}

func (m *Metrics) WorkflowTransition(action string, step core.Step) {
	m.transitions.WithLabelValues(action, string(step)).Inc()
}

func (m *Metrics) PDFCleaned(files int, bytes int64) {
	m.pdfFilesCleaned.Add(float64(files))
	m.pdfBytesFreed.Add(float64(bytes))
}

var _ core.Observer = (*Metrics)(nil)
