package core

// workflow.go models the order-creation wizard as a step state machine.
//
// Steps run in a fixed order: select, create, approve, process, complete.
// The approve step is skipped when the workflow's SkipApproval flag is set.
// Navigation helpers are pure functions over that order; the transition
// methods on Workflow enforce the per-step status rules:
//
//	pending -> current -> completed
//	current -> error -> current (retry)
//	pending -> skipped (approve only, when approval is not required)

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"
)

// Step identifies a wizard step.
type Step string

const (
	StepSelect   Step = "select"
	StepCreate   Step = "create"
	StepApprove  Step = "approve"
	StepProcess  Step = "process"
	StepComplete Step = "complete"
)

// StepOrder is the fixed wizard order.
var StepOrder = []Step{StepSelect, StepCreate, StepApprove, StepProcess, StepComplete}

var stepTitles = map[Step]string{
	StepSelect:   "작성 방식 선택",
	StepCreate:   "발주서 작성",
	StepApprove:  "승인",
	StepProcess:  "처리",
	StepComplete: "완료",
}

// stepEstimates are expected minutes per step.
var stepEstimates = map[Step]int{
	StepSelect:   1,
	StepCreate:   5,
	StepApprove:  10,
	StepProcess:  3,
	StepComplete: 1,
}

// StepStatus is the state of one step.
type StepStatus string

const (
	StatusPending   StepStatus = "pending"
	StatusCurrent   StepStatus = "current"
	StatusCompleted StepStatus = "completed"
	StatusError     StepStatus = "error"
	StatusSkipped   StepStatus = "skipped"
)

// CreationMethod is how the order is being authored.
type CreationMethod string

const (
	MethodStandard CreationMethod = "standard"
	MethodExcel    CreationMethod = "excel"
)

// Valid reports whether m is a known creation method.
func (m CreationMethod) Valid() bool {
	return m == MethodStandard || m == MethodExcel
}

var (
	ErrWorkflowNotFound   = errors.New("workflow not found")
	ErrInvalidTransition  = errors.New("invalid workflow transition")
	ErrWorkflowFinished   = errors.New("workflow already complete")
	ErrUnknownMethod      = errors.New("unknown creation method")
	ErrUnknownPipelineRef = errors.New("unknown pipeline step")
)

// NextStep returns the step after current, jumping over approve when
// skipApproval is set. ok is false at the end or for an unknown step.
func NextStep(current Step, skipApproval bool) (Step, bool) {
	i := slices.Index(StepOrder, current)
	if i < 0 || i == len(StepOrder)-1 {
		return "", false
	}
	next := StepOrder[i+1]
	if next == StepApprove && skipApproval {
		if i+2 >= len(StepOrder) {
			return "", false
		}
		return StepOrder[i+2], true
	}
	return next, true
}

// PreviousStep mirrors NextStep.
func PreviousStep(current Step, wasApprovalSkipped bool) (Step, bool) {
	i := slices.Index(StepOrder, current)
	if i <= 0 {
		return "", false
	}
	prev := StepOrder[i-1]
	if prev == StepApprove && wasApprovalSkipped {
		if i-2 < 0 {
			return "", false
		}
		return StepOrder[i-2], true
	}
	return prev, true
}

// Flags are the options chosen when the workflow starts.
type Flags struct {
	SkipApproval bool `json:"skipApproval"`
	GeneratePDF  bool `json:"generatePDF"`
	SendEmails   bool `json:"sendEmails"`
}

// StepInfo is the state of one wizard step.
type StepInfo struct {
	ID          Step       `json:"id"`
	Title       string     `json:"title"`
	Status      StepStatus `json:"status"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// ApprovalState tracks whether approval applies to this workflow.
type ApprovalState struct {
	Required bool `json:"required"`
}

// StepStates holds step-specific state.
type StepStates struct {
	Creation *CreationData `json:"creation,omitempty"`
	Approval ApprovalState `json:"approval"`
}

// WorkflowMetadata identifies a workflow.
type WorkflowMetadata struct {
	WorkflowID     string         `json:"workflowId"`
	CreatedAt      time.Time      `json:"createdAt"`
	LastModified   time.Time      `json:"lastModified"`
	CreationMethod CreationMethod `json:"creationMethod"`
}

// Workflow is a persisted wizard instance.
type Workflow struct {
	CurrentStep Step             `json:"currentStep"`
	Steps       []StepInfo       `json:"steps"`
	StepStates  StepStates       `json:"stepStates"`
	Metadata    WorkflowMetadata `json:"metadata"`
	Flags       Flags            `json:"flags"`
	Pipeline    []ProcessingStep `json:"processingPipeline"`
}

// NewWorkflow starts a workflow on the select step.
func NewWorkflow(id string, method CreationMethod, flags Flags, now time.Time) *Workflow {
	w := &Workflow{
		CurrentStep: StepSelect,
		StepStates:  StepStates{Approval: ApprovalState{Required: !flags.SkipApproval}},
		Metadata: WorkflowMetadata{
			WorkflowID:     id,
			CreatedAt:      now,
			LastModified:   now,
			CreationMethod: method,
		},
		Flags:    flags,
		Pipeline: BuildPipeline(flags),
	}
	for _, s := range StepOrder {
		w.Steps = append(w.Steps, StepInfo{ID: s, Title: stepTitles[s], Status: StatusPending})
	}
	w.step(StepSelect).Status = StatusCurrent
	w.step(StepSelect).StartedAt = &now
	return w
}

func (w *Workflow) step(id Step) *StepInfo {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return &w.Steps[i]
		}
	}
	return nil
}

// Step returns the state of id.
func (w *Workflow) Step(id Step) (StepInfo, bool) {
	if s := w.step(id); s != nil {
		return *s, true
	}
	return StepInfo{}, false
}

func (w *Workflow) approvalSkipped() bool {
	return !w.StepStates.Approval.Required
}

// Finished reports whether the complete step is done.
func (w *Workflow) Finished() bool {
	s := w.step(StepComplete)
	return s != nil && s.Status == StatusCompleted
}

// Advance completes the current step and moves to the next one.
func (w *Workflow) Advance(now time.Time) error {
	cur := w.step(w.CurrentStep)
	if cur == nil {
		return fmt.Errorf("%w: unknown step %q", ErrInvalidTransition, w.CurrentStep)
	}
	if w.Finished() {
		return ErrWorkflowFinished
	}
	if cur.Status != StatusCurrent {
		return fmt.Errorf("%w: cannot complete %s in status %s", ErrInvalidTransition, cur.ID, cur.Status)
	}

	cur.Status = StatusCompleted
	cur.CompletedAt = &now
	cur.Error = ""

	next, ok := NextStep(w.CurrentStep, w.approvalSkipped())
	if ok {
		if w.approvalSkipped() {
			if a := w.step(StepApprove); a != nil && a.Status == StatusPending && slices.Index(StepOrder, next) > slices.Index(StepOrder, StepApprove) {
				a.Status = StatusSkipped
			}
		}
		n := w.step(next)
		n.Status = StatusCurrent
		n.StartedAt = &now
		n.CompletedAt = nil
		w.CurrentStep = next
	}
	w.Metadata.LastModified = now
	return nil
}

// Back returns to the previous step. The step being left goes back to
// pending; a skipped approve step stays skipped.
func (w *Workflow) Back(now time.Time) error {
	prev, ok := PreviousStep(w.CurrentStep, w.approvalSkipped())
	if !ok {
		return fmt.Errorf("%w: no step before %s", ErrInvalidTransition, w.CurrentStep)
	}
	cur := w.step(w.CurrentStep)
	if cur.Status == StatusCompleted {
		return ErrWorkflowFinished
	}
	cur.Status = StatusPending
	cur.StartedAt = nil
	cur.Error = ""

	p := w.step(prev)
	p.Status = StatusCurrent
	p.CompletedAt = nil
	p.StartedAt = &now
	w.CurrentStep = prev
	w.Metadata.LastModified = now
	return nil
}

// Fail marks the current step as errored.
func (w *Workflow) Fail(reason string, now time.Time) error {
	cur := w.step(w.CurrentStep)
	if cur == nil || cur.Status != StatusCurrent {
		return fmt.Errorf("%w: cannot fail %s", ErrInvalidTransition, w.CurrentStep)
	}
	cur.Status = StatusError
	cur.Error = reason
	w.Metadata.LastModified = now
	return nil
}

// Retry returns an errored current step to current.
func (w *Workflow) Retry(now time.Time) error {
	cur := w.step(w.CurrentStep)
	if cur == nil || cur.Status != StatusError {
		return fmt.Errorf("%w: %s is not in error", ErrInvalidTransition, w.CurrentStep)
	}
	cur.Status = StatusCurrent
	cur.Error = ""
	cur.StartedAt = &now
	w.Metadata.LastModified = now
	return nil
}

func (w *Workflow) applicable(id Step) bool {
	return id != StepApprove || w.StepStates.Approval.Required
}

// Progress returns completed or skipped steps over applicable steps as a
// percentage. A skipped approve step counts as done but is not applicable,
// so the result is capped at 100.
func Progress(w *Workflow) int {
	total, done := 0, 0
	for _, s := range w.Steps {
		if w.applicable(s.ID) {
			total++
		}
		if s.Status == StatusCompleted || s.Status == StatusSkipped {
			done++
		}
	}
	if total == 0 {
		return 0
	}
	return min(100, int(math.Round(float64(done)/float64(total)*100)))
}

// EstimateRemaining sums the expected time of pending and current steps.
func EstimateRemaining(w *Workflow) time.Duration {
	minutes := 0
	for _, s := range w.Steps {
		if s.Status != StatusPending && s.Status != StatusCurrent {
			continue
		}
		if !w.applicable(s.ID) {
			continue
		}
		minutes += stepEstimates[s.ID]
	}
	return time.Duration(minutes) * time.Minute
}

// FormatStepDuration renders elapsed time as "N초" or "M분 S초". A nil
// start renders "-"; a nil end means now.
func FormatStepDuration(start, end *time.Time, now time.Time) string {
	if start == nil {
		return "-"
	}
	stop := now
	if end != nil {
		stop = *end
	}
	seconds := int(stop.Sub(*start) / time.Second)
	if seconds < 60 {
		return fmt.Sprintf("%d초", seconds)
	}
	return fmt.Sprintf("%d분 %d초", seconds/60, seconds%60)
}

// CreationData is what the create step hands to the process step.
// Standard-form fields and Excel-upload fields share one shape; which set
// is checked depends on the creation method.
type CreationData struct {
	ProjectID    int64    `json:"projectId,omitempty"`
	VendorID     int64    `json:"vendorId,omitempty"`
	Items        []string `json:"items,omitempty"`
	OrderDate    string   `json:"orderDate,omitempty"`
	DeliveryDate string   `json:"deliveryDate,omitempty"`

	Type        string   `json:"type,omitempty"`
	SessionID   string   `json:"sessionId,omitempty"`
	OrderCount  int      `json:"orderCount,omitempty"`
	FilePath    string   `json:"filePath,omitempty"`
	ParseErrors []string `json:"parseErrors,omitempty"`
}

// ValidateCreationData checks that data is complete for method. The
// returned map is keyed by field name and holds user-facing messages.
func ValidateCreationData(method CreationMethod, data *CreationData) map[string]string {
	errs := make(map[string]string)
	switch method {
	case MethodStandard:
		if data == nil {
			data = &CreationData{}
		}
		if data.ProjectID == 0 {
			errs["projectId"] = "프로젝트를 선택해주세요"
		}
		if data.VendorID == 0 {
			errs["vendorId"] = "거래처를 선택해주세요"
		}
		if len(data.Items) == 0 {
			errs["items"] = "품목을 추가해주세요"
		}
		if data.OrderDate == "" {
			errs["orderDate"] = "발주일자를 입력해주세요"
		}
		if data.DeliveryDate == "" {
			errs["deliveryDate"] = "납기일자를 입력해주세요"
		}
	case MethodExcel:
		if data == nil {
			errs["data"] = "업로드된 데이터가 없습니다"
			break
		}
		if data.Type != string(MethodExcel) {
			errs["type"] = "엑셀 업로드 형식이 올바르지 않습니다"
		}
		if data.OrderCount == 0 {
			errs["orders"] = "파싱된 발주서 데이터가 없습니다"
		}
		if data.FilePath == "" && data.SessionID == "" {
			errs["filePath"] = "파일 경로가 없습니다"
		}
		if len(data.ParseErrors) > 0 {
			errs["parse"] = "엑셀 파일 파싱 중 오류가 발생했습니다"
		}
	default:
		errs["method"] = ErrUnknownMethod.Error()
	}
	return errs
}
