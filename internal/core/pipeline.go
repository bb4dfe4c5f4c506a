package core

import (
	"fmt"
	"time"
)

// PipelineStepID names a processing sub-step.
type PipelineStepID string

const (
	PipePDFGeneration        PipelineStepID = "pdf_generation"
	PipeVendorValidation     PipelineStepID = "vendor_validation"
	PipeEmailPreparation     PipelineStepID = "email_preparation"
	PipeAttachmentProcessing PipelineStepID = "attachment_processing"
	PipeFinalValidation      PipelineStepID = "final_validation"
)

// PipelineStatus is the state of a processing sub-step.
type PipelineStatus string

const (
	PipeIdle    PipelineStatus = "idle"
	PipeRunning PipelineStatus = "running"
	PipeDone    PipelineStatus = "done"
	PipeError   PipelineStatus = "error"
)

const (
	retryBaseDelay = time.Second
	retryMaxDelay  = 30 * time.Second
)

// ProcessingStep is one entry of the processing plan.
type ProcessingStep struct {
	ID          PipelineStepID `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Status      PipelineStatus `json:"status"`
	RetryCount  int            `json:"retryCount,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// BuildPipeline assembles the processing plan for flags. Every entry
// starts idle; something else walks the list.
func BuildPipeline(flags Flags) []ProcessingStep {
	var steps []ProcessingStep
	if flags.GeneratePDF {
		steps = append(steps, ProcessingStep{
			ID: PipePDFGeneration, Title: "PDF 생성",
			Description: "발주서를 PDF로 변환하고 있습니다",
		})
	}
	steps = append(steps, ProcessingStep{
		ID: PipeVendorValidation, Title: "거래처 검증",
		Description: "거래처 정보를 확인하고 있습니다",
	})
	if flags.SendEmails {
		steps = append(steps,
			ProcessingStep{
				ID: PipeEmailPreparation, Title: "이메일 준비",
				Description: "이메일을 작성하고 있습니다",
			},
			ProcessingStep{
				ID: PipeAttachmentProcessing, Title: "첨부파일 처리",
				Description: "첨부파일을 준비하고 있습니다",
			},
		)
	}
	steps = append(steps, ProcessingStep{
		ID: PipeFinalValidation, Title: "최종 검증",
		Description: "모든 정보를 최종 확인하고 있습니다",
	})
	for i := range steps {
		steps[i].Status = PipeIdle
	}
	return steps
}

// CanRetry reports whether step may be retried. Final validation
// failures end the run.
func CanRetry(step ProcessingStep) bool {
	return step.Status == PipeError && step.ID != PipeFinalValidation
}

// RetryDelay is exponential backoff starting at one second, capped at 30s.
func RetryDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= 5 {
		return retryMaxDelay
	}
	return min(retryBaseDelay<<retryCount, retryMaxDelay)
}

var pipelineTransitions = map[PipelineStatus][]PipelineStatus{
	PipeIdle:    {PipeRunning},
	PipeRunning: {PipeDone, PipeError},
	PipeError:   {PipeRunning},
}

// SetPipelineStatus moves the pipeline step id to status. Moving an
// errored step back to running counts as a retry and is only allowed when
// CanRetry holds.
func (w *Workflow) SetPipelineStatus(id PipelineStepID, status PipelineStatus, errMsg string, now time.Time) error {
	for i := range w.Pipeline {
		st := &w.Pipeline[i]
		if st.ID != id {
			continue
		}
		allowed := false
		for _, next := range pipelineTransitions[st.Status] {
			if next == status {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, id, st.Status, status)
		}
		if st.Status == PipeError {
			if !CanRetry(*st) {
				return fmt.Errorf("%w: %s cannot be retried", ErrInvalidTransition, id)
			}
			st.RetryCount++
		}
		st.Status = status
		st.Error = ""
		if status == PipeError {
			st.Error = errMsg
		}
		w.Metadata.LastModified = now
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownPipelineRef, id)
}
