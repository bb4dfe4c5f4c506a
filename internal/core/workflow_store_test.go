package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestMemoryWorkflowStore(t *testing.T) {
	s := NewMemoryWorkflowStore()
	ctx := context.Background()

	if _, err := s.LoadWorkflow(ctx, "nope"); !errors.Is(err, ErrWorkflowNotFound) {
		t.Errorf("LoadWorkflow() = %v, want ErrWorkflowNotFound", err)
	}

	w := NewWorkflow("wf-1", MethodExcel, Flags{SendEmails: true}, wfStart)
	w.StepStates.Creation = &CreationData{Type: "excel", SessionID: "s-1", OrderCount: 2}
	blob, err := EncodeWorkflow(w)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveWorkflow(ctx, "wf-1", wfStart, blob); err != nil {
		t.Fatal(err)
	}
	blob[0] = 'x'

	got, err := s.LoadWorkflow(ctx, "wf-1")
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeWorkflow(got)
	if err != nil {
		t.Fatalf("stored record should be untouched by caller writes: %v", err)
	}
	if decoded.Metadata.WorkflowID != "wf-1" || decoded.StepStates.Creation.SessionID != "s-1" || len(decoded.Pipeline) != 4 {
		t.Errorf("decoded = %+v", decoded)
	}

	if err := s.DeleteWorkflow(ctx, "wf-1"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteWorkflow(ctx, "wf-1"); !errors.Is(err, ErrWorkflowNotFound) {
		t.Errorf("second delete = %v", err)
	}
	if refs, _ := s.RecentWorkflows(ctx, 0); len(refs) != 0 {
		t.Errorf("deleted workflow still listed: %v", refs)
	}
}

func TestMemoryWorkflowStore_Recent(t *testing.T) {
	s := NewMemoryWorkflowStore()
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("wf-%d", i)
		if err := s.SaveWorkflow(ctx, id, wfStart.Add(time.Duration(i)*time.Minute), []byte("{}")); err != nil {
			t.Fatal(err)
		}
	}
	s.SaveWorkflow(ctx, "wf-5", wfStart.Add(time.Hour), []byte("{}"))

	refs, err := s.RecentWorkflows(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != RecentWorkflowLimit {
		t.Fatalf("got %d refs, want %d", len(refs), RecentWorkflowLimit)
	}
	if refs[0].ID != "wf-5" || refs[1].ID != "wf-11" {
		t.Errorf("recent order = %v", refs)
	}
	for _, r := range refs {
		if r.ID == "wf-0" || r.ID == "wf-1" {
			t.Errorf("oldest entries should be evicted: %v", refs)
		}
	}

	if refs, _ := s.RecentWorkflows(ctx, 3); len(refs) != 3 {
		t.Errorf("limit 3 returned %d", len(refs))
	}
}

func TestDecodeWorkflow_Invalid(t *testing.T) {
	if _, err := DecodeWorkflow([]byte("{")); err == nil {
		t.Error("truncated record should fail")
	}
}
