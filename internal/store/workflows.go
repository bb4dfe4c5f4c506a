package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/poflow/internal/core"
)

// WorkflowStore is a core.WorkflowStore over the workflows table. The
// recent list is derived from the modified column.
type WorkflowStore struct {
	db DBTX
}

// NewWorkflowStore returns a WorkflowStore using db.
func NewWorkflowStore(db DBTX) *WorkflowStore {
	return &WorkflowStore{db: db}
}

func (s *WorkflowStore) SaveWorkflow(ctx context.Context, id string, modified time.Time, blob []byte) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO workflows (id, data, modified) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, modified = EXCLUDED.modified`,
		id, blob, modified)
	if err != nil {
		return fmt.Errorf("save workflow: %w", err)
	}
	return nil
}

func (s *WorkflowStore) LoadWorkflow(ctx context.Context, id string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRow(ctx, `SELECT data FROM workflows WHERE id = $1`, id).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load workflow: %w", err)
	}
	return blob, nil
}

func (s *WorkflowStore) RecentWorkflows(ctx context.Context, limit int) ([]core.WorkflowRef, error) {
	if limit <= 0 {
		limit = core.RecentWorkflowLimit
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, modified FROM workflows ORDER BY modified DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent workflows: %w", err)
	}
	refs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.WorkflowRef, error) {
		var ref core.WorkflowRef
		err := row.Scan(&ref.ID, &ref.Date)
		return ref, err
	})
	if err != nil {
		return nil, fmt.Errorf("recent workflows: %w", err)
	}
	return refs, nil
}

func (s *WorkflowStore) DeleteWorkflow(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrWorkflowNotFound
	}
	return nil
}
