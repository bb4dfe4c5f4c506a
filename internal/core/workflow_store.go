package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// RecentWorkflowLimit caps the recently-used workflow list.
const RecentWorkflowLimit = 10

// WorkflowRef is an entry of the recent workflow list.
type WorkflowRef struct {
	ID   string    `json:"id"`
	Date time.Time `json:"date"`
}

// WorkflowStore persists workflows as opaque JSON records keyed by id.
type WorkflowStore interface {
	SaveWorkflow(ctx context.Context, id string, modified time.Time, blob []byte) error
	LoadWorkflow(ctx context.Context, id string) ([]byte, error)
	RecentWorkflows(ctx context.Context, limit int) ([]WorkflowRef, error)
	DeleteWorkflow(ctx context.Context, id string) error
}

// EncodeWorkflow serialises w for a WorkflowStore.
func EncodeWorkflow(w *Workflow) ([]byte, error) {
	return json.Marshal(w)
}

// DecodeWorkflow parses a stored workflow record.
func DecodeWorkflow(blob []byte) (*Workflow, error) {
	var w Workflow
	if err := json.Unmarshal(blob, &w); err != nil {
		return nil, fmt.Errorf("decode workflow: %w", err)
	}
	return &w, nil
}

// MemoryWorkflowStore keeps workflows in process memory.
type MemoryWorkflowStore struct {
	mu     sync.RWMutex
	blobs  map[string][]byte
	recent []WorkflowRef
}

// NewMemoryWorkflowStore returns an empty store.
func NewMemoryWorkflowStore() *MemoryWorkflowStore {
	return &MemoryWorkflowStore{blobs: make(map[string][]byte)}
}

func (s *MemoryWorkflowStore) SaveWorkflow(ctx context.Context, id string, modified time.Time, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blobs["workflow_"+id] = append([]byte(nil), blob...)

	updated := []WorkflowRef{{ID: id, Date: modified}}
	for _, r := range s.recent {
		if r.ID != id {
			updated = append(updated, r)
		}
	}
	if len(updated) > RecentWorkflowLimit {
		updated = updated[:RecentWorkflowLimit]
	}
	s.recent = updated
	return nil
}

func (s *MemoryWorkflowStore) LoadWorkflow(ctx context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, ok := s.blobs["workflow_"+id]
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	return append([]byte(nil), blob...), nil
}

func (s *MemoryWorkflowStore) RecentWorkflows(ctx context.Context, limit int) ([]WorkflowRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.recent) {
		limit = len(s.recent)
	}
	out := make([]WorkflowRef, limit)
	copy(out, s.recent[:limit])
	return out, nil
}

func (s *MemoryWorkflowStore) DeleteWorkflow(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs["workflow_"+id]; !ok {
		return ErrWorkflowNotFound
	}
	delete(s.blobs, "workflow_"+id)
	kept := s.recent[:0]
	for _, r := range s.recent {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	s.recent = kept
	return nil
}
