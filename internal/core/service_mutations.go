package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/JonMunkholm/poflow/internal/logging"
)

// ErrIncompleteCreation is returned when the create step is advanced with
// missing or inconsistent creation data.
var ErrIncompleteCreation = errors.New("creation data incomplete")

// CreationError lists the fields that block leaving the create step.
type CreationError struct {
	Fields map[string]string
}

func (e *CreationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("%s: %s", ErrIncompleteCreation, strings.Join(keys, ", "))
}

func (e *CreationError) Is(target error) bool { return target == ErrIncompleteCreation }

// WorkflowView is a workflow plus derived progress figures.
type WorkflowView struct {
	*Workflow
	Progress         int `json:"progress"`
	RemainingMinutes int `json:"estimatedRemainingMinutes"`
}

func viewOf(w *Workflow) *WorkflowView {
	return &WorkflowView{
		Workflow:         w,
		Progress:         Progress(w),
		RemainingMinutes: int(EstimateRemaining(w).Minutes()),
	}
}

// CreateWorkflow starts and stores a new workflow.
func (s *Service) CreateWorkflow(ctx context.Context, method CreationMethod, flags Flags) (*WorkflowView, error) {
	if !method.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	w := NewWorkflow(s.newID(), method, flags, s.now())

	s.wfMu.Lock()
	defer s.wfMu.Unlock()
	if err := s.saveWorkflow(ctx, w); err != nil {
		return nil, err
	}
	s.observer.WorkflowTransition("create", w.CurrentStep)
	logging.WithFields(ctx, "workflow_id", w.Metadata.WorkflowID).Info("workflow created",
		slog.String("method", string(method)),
		slog.Bool("skip_approval", flags.SkipApproval),
	)
	return viewOf(w), nil
}

// AdvanceWorkflow moves a workflow to its next step. creation, when not
// nil, replaces the stored creation data first; leaving the create step
// requires that data to be complete for the workflow's method.
func (s *Service) AdvanceWorkflow(ctx context.Context, id string, creation *CreationData) (*WorkflowView, error) {
	return s.mutateWorkflow(ctx, id, "advance", func(w *Workflow) error {
		if creation != nil {
			w.StepStates.Creation = creation
		}
		if w.CurrentStep == StepCreate {
			if errs := ValidateCreationData(w.Metadata.CreationMethod, w.StepStates.Creation); len(errs) > 0 {
				return &CreationError{Fields: errs}
			}
		}
		return w.Advance(s.now())
	})
}

// BackWorkflow returns a workflow to its previous step.
func (s *Service) BackWorkflow(ctx context.Context, id string) (*WorkflowView, error) {
	return s.mutateWorkflow(ctx, id, "back", func(w *Workflow) error {
		return w.Back(s.now())
	})
}

// FailWorkflow marks the current step as failed.
func (s *Service) FailWorkflow(ctx context.Context, id, reason string) (*WorkflowView, error) {
	return s.mutateWorkflow(ctx, id, "fail", func(w *Workflow) error {
		return w.Fail(reason, s.now())
	})
}

// RetryWorkflow reopens a failed step.
func (s *Service) RetryWorkflow(ctx context.Context, id string) (*WorkflowView, error) {
	return s.mutateWorkflow(ctx, id, "retry", func(w *Workflow) error {
		return w.Retry(s.now())
	})
}

// SetPipelineStatus moves one processing sub-step of a workflow.
func (s *Service) SetPipelineStatus(ctx context.Context, id string, step PipelineStepID, status PipelineStatus, errMsg string) (*WorkflowView, error) {
	return s.mutateWorkflow(ctx, id, "pipeline", func(w *Workflow) error {
		return w.SetPipelineStatus(step, status, errMsg, s.now())
	})
}

// DeleteWorkflow removes a stored workflow.
func (s *Service) DeleteWorkflow(ctx context.Context, id string) error {
	s.wfMu.Lock()
	defer s.wfMu.Unlock()
	return s.workflows.DeleteWorkflow(ctx, id)
}

func (s *Service) mutateWorkflow(ctx context.Context, id, action string, fn func(*Workflow) error) (*WorkflowView, error) {
	s.wfMu.Lock()
	defer s.wfMu.Unlock()

	w, err := s.loadWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	from := w.CurrentStep
	if err := fn(w); err != nil {
		return nil, err
	}
	if err := s.saveWorkflow(ctx, w); err != nil {
		return nil, err
	}

	s.observer.WorkflowTransition(action, w.CurrentStep)
	logging.WithFields(ctx, "workflow_id", id).Info("workflow updated",
		slog.String("action", action),
		slog.String("from", string(from)),
		slog.String("to", string(w.CurrentStep)),
	)
	return viewOf(w), nil
}

func (s *Service) saveWorkflow(ctx context.Context, w *Workflow) error {
	blob, err := EncodeWorkflow(w)
	if err != nil {
		return fmt.Errorf("encode workflow: %w", err)
	}
	if err := s.workflows.SaveWorkflow(ctx, w.Metadata.WorkflowID, w.Metadata.LastModified, blob); err != nil {
		return fmt.Errorf("save workflow %s: %w", w.Metadata.WorkflowID, err)
	}
	return nil
}

func (s *Service) loadWorkflow(ctx context.Context, id string) (*Workflow, error) {
	blob, err := s.workflows.LoadWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	return DecodeWorkflow(blob)
}
