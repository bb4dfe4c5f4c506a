package core

import (
	"errors"
	"testing"
	"time"
)

var wfStart = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func statuses(w *Workflow) map[Step]StepStatus {
	out := make(map[Step]StepStatus, len(w.Steps))
	for _, s := range w.Steps {
		out[s.ID] = s.Status
	}
	return out
}

func TestNextStep(t *testing.T) {
	tests := []struct {
		cur  Step
		skip bool
		want Step
		ok   bool
	}{
		{StepSelect, false, StepCreate, true},
		{StepCreate, false, StepApprove, true},
		{StepCreate, true, StepProcess, true},
		{StepApprove, true, StepProcess, true},
		{StepProcess, false, StepComplete, true},
		{StepComplete, false, "", false},
		{"bogus", false, "", false},
	}
	for _, tt := range tests {
		got, ok := NextStep(tt.cur, tt.skip)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NextStep(%s, %v) = %s, %v; want %s, %v", tt.cur, tt.skip, got, ok, tt.want, tt.ok)
		}
	}
}

func TestPreviousStep(t *testing.T) {
	tests := []struct {
		cur  Step
		skip bool
		want Step
		ok   bool
	}{
		{StepSelect, false, "", false},
		{StepCreate, false, StepSelect, true},
		{StepProcess, false, StepApprove, true},
		{StepProcess, true, StepCreate, true},
		{StepComplete, true, StepProcess, true},
		{"bogus", false, "", false},
	}
	for _, tt := range tests {
		got, ok := PreviousStep(tt.cur, tt.skip)
		if got != tt.want || ok != tt.ok {
			t.Errorf("PreviousStep(%s, %v) = %s, %v; want %s, %v", tt.cur, tt.skip, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNewWorkflow(t *testing.T) {
	w := NewWorkflow("wf-1", MethodExcel, Flags{GeneratePDF: true}, wfStart)

	if w.CurrentStep != StepSelect || w.Metadata.WorkflowID != "wf-1" {
		t.Errorf("workflow = %+v", w)
	}
	if len(w.Steps) != len(StepOrder) {
		t.Fatalf("got %d steps", len(w.Steps))
	}
	sel, _ := w.Step(StepSelect)
	if sel.Status != StatusCurrent || sel.StartedAt == nil || sel.Title == "" {
		t.Errorf("select step = %+v", sel)
	}
	if !w.StepStates.Approval.Required {
		t.Error("approval should be required without SkipApproval")
	}
	if Progress(w) != 0 {
		t.Errorf("Progress() = %d, want 0", Progress(w))
	}
}

func TestWorkflow_AdvanceWithApproval(t *testing.T) {
	w := NewWorkflow("wf", MethodStandard, Flags{}, wfStart)

	want := []struct {
		step     Step
		progress int
	}{
		{StepCreate, 20},
		{StepApprove, 40},
		{StepProcess, 60},
		{StepComplete, 80},
	}
	for i, tt := range want {
		now := wfStart.Add(time.Duration(i+1) * time.Minute)
		if err := w.Advance(now); err != nil {
			t.Fatalf("Advance() #%d error = %v", i, err)
		}
		if w.CurrentStep != tt.step || Progress(w) != tt.progress {
			t.Errorf("after advance #%d: step %s progress %d, want %s %d", i, w.CurrentStep, Progress(w), tt.step, tt.progress)
		}
		if !w.Metadata.LastModified.Equal(now) {
			t.Errorf("LastModified = %v, want %v", w.Metadata.LastModified, now)
		}
	}

	if err := w.Advance(wfStart.Add(time.Hour)); err != nil {
		t.Fatalf("completing the last step: %v", err)
	}
	if !w.Finished() || Progress(w) != 100 || w.CurrentStep != StepComplete {
		t.Errorf("finished workflow = %+v", statuses(w))
	}
	if err := w.Advance(wfStart.Add(2 * time.Hour)); !errors.Is(err, ErrWorkflowFinished) {
		t.Errorf("Advance() after finish = %v, want ErrWorkflowFinished", err)
	}
	if err := w.Back(wfStart.Add(2 * time.Hour)); !errors.Is(err, ErrWorkflowFinished) {
		t.Errorf("Back() after finish = %v, want ErrWorkflowFinished", err)
	}
}

func TestWorkflow_SkipApproval(t *testing.T) {
	w := NewWorkflow("wf", MethodExcel, Flags{SkipApproval: true}, wfStart)

	if err := w.Advance(wfStart); err != nil {
		t.Fatal(err)
	}
	if got := EstimateRemaining(w); got != 9*time.Minute {
		t.Errorf("EstimateRemaining() = %v, want 9m", got)
	}
	if Progress(w) != 25 {
		t.Errorf("Progress() = %d, want 25", Progress(w))
	}

	if err := w.Advance(wfStart); err != nil {
		t.Fatal(err)
	}
	if w.CurrentStep != StepProcess {
		t.Fatalf("CurrentStep = %s, want process", w.CurrentStep)
	}
	st := statuses(w)
	if st[StepApprove] != StatusSkipped || st[StepCreate] != StatusCompleted {
		t.Errorf("statuses = %v", st)
	}
	// select, create and the skipped approve over four applicable steps
	if Progress(w) != 75 {
		t.Errorf("Progress() = %d, want 75", Progress(w))
	}

	if err := w.Back(wfStart); err != nil {
		t.Fatal(err)
	}
	st = statuses(w)
	if w.CurrentStep != StepCreate || st[StepProcess] != StatusPending || st[StepApprove] != StatusSkipped {
		t.Errorf("after Back: current %s statuses %v", w.CurrentStep, st)
	}
	if Progress(w) != 50 {
		t.Errorf("Progress() after Back = %d, want 50", Progress(w))
	}

	for w.CurrentStep != StepComplete {
		if err := w.Advance(wfStart); err != nil {
			t.Fatal(err)
		}
	}
	if Progress(w) != 100 {
		t.Errorf("Progress() at complete = %d, want 100", Progress(w))
	}
	if err := w.Advance(wfStart); err != nil {
		t.Fatal(err)
	}
	if Progress(w) != 100 {
		t.Errorf("Progress() = %d, want 100", Progress(w))
	}
}

func TestWorkflow_BackAtStart(t *testing.T) {
	w := NewWorkflow("wf", MethodStandard, Flags{}, wfStart)
	if err := w.Back(wfStart); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Back() = %v, want ErrInvalidTransition", err)
	}
}

func TestWorkflow_FailAndRetry(t *testing.T) {
	w := NewWorkflow("wf", MethodStandard, Flags{}, wfStart)

	if err := w.Retry(wfStart); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Retry() on a healthy step = %v", err)
	}
	if err := w.Fail("registry down", wfStart); err != nil {
		t.Fatal(err)
	}
	sel, _ := w.Step(StepSelect)
	if sel.Status != StatusError || sel.Error != "registry down" {
		t.Errorf("failed step = %+v", sel)
	}
	if err := w.Advance(wfStart); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Advance() on an errored step = %v", err)
	}
	if err := w.Fail("again", wfStart); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fail() twice = %v", err)
	}

	if err := w.Retry(wfStart.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	sel, _ = w.Step(StepSelect)
	if sel.Status != StatusCurrent || sel.Error != "" {
		t.Errorf("retried step = %+v", sel)
	}
	if err := w.Advance(wfStart); err != nil {
		t.Errorf("Advance() after retry = %v", err)
	}
}

func TestEstimateRemaining(t *testing.T) {
	if got := EstimateRemaining(NewWorkflow("a", MethodStandard, Flags{}, wfStart)); got != 20*time.Minute {
		t.Errorf("with approval = %v, want 20m", got)
	}
	if got := EstimateRemaining(NewWorkflow("b", MethodStandard, Flags{SkipApproval: true}, wfStart)); got != 10*time.Minute {
		t.Errorf("without approval = %v, want 10m", got)
	}
}

func TestFormatStepDuration(t *testing.T) {
	at := func(d time.Duration) *time.Time {
		ts := wfStart.Add(d)
		return &ts
	}
	start := at(0)

	tests := []struct {
		name  string
		start *time.Time
		end   *time.Time
		want  string
	}{
		{"not started", nil, nil, "-"},
		{"seconds", start, at(45 * time.Second), "45초"},
		{"minutes", start, at(125 * time.Second), "2분 5초"},
		{"running", start, nil, "1분 0초"},
	}
	for _, tt := range tests {
		if got := FormatStepDuration(tt.start, tt.end, wfStart.Add(time.Minute)); got != tt.want {
			t.Errorf("%s: FormatStepDuration() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestValidateCreationData(t *testing.T) {
	tests := []struct {
		name   string
		method CreationMethod
		data   *CreationData
		want   []string
	}{
		{"standard nil", MethodStandard, nil, []string{"projectId", "vendorId", "items", "orderDate", "deliveryDate"}},
		{"standard complete", MethodStandard, &CreationData{
			ProjectID: 1, VendorID: 2, Items: []string{"철근"}, OrderDate: "2024-03-01", DeliveryDate: "2024-03-15",
		}, nil},
		{"standard partial", MethodStandard, &CreationData{ProjectID: 1, VendorID: 2, OrderDate: "2024-03-01"}, []string{"items", "deliveryDate"}},
		{"excel nil", MethodExcel, nil, []string{"data"}},
		{"excel complete", MethodExcel, &CreationData{Type: "excel", SessionID: "s1", OrderCount: 3}, nil},
		{"excel empty", MethodExcel, &CreationData{}, []string{"type", "orders", "filePath"}},
		{"excel parse errors", MethodExcel, &CreationData{Type: "excel", FilePath: "/tmp/a.xlsx", OrderCount: 1, ParseErrors: []string{"x"}}, []string{"parse"}},
		{"unknown method", "fax", &CreationData{}, []string{"method"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateCreationData(tt.method, tt.data)
			if len(got) != len(tt.want) {
				t.Fatalf("errors = %v, want keys %v", got, tt.want)
			}
			for _, k := range tt.want {
				if got[k] == "" {
					t.Errorf("missing message for %s in %v", k, got)
				}
			}
		})
	}
}

func TestCreationMethodValid(t *testing.T) {
	for m, want := range map[CreationMethod]bool{MethodStandard: true, MethodExcel: true, "": false, "fax": false} {
		if m.Valid() != want {
			t.Errorf("%q.Valid() = %v", m, !want)
		}
	}
}
