package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/models"
)

// RunStore keeps the audit trail of generation runs
type RunStore struct {
	pool *pgxpool.Pool
}

// NewRunStore creates a run store on pool
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Record inserts run. A missing ID is generated.
func (s *RunStore) Record(ctx context.Context, run *models.GenerationRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	runID, err := uuid.Parse(run.ID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", run.ID, err)
	}

	var projectID *uuid.UUID
	if run.ProjectID != nil {
		parsed, err := parseID(*run.ProjectID)
		if err != nil {
			return err
		}
		projectID = &parsed
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO generation_runs
			(id, project_id, thread_id, mode, prompt, status, attempts, strategy, error_kind, error_message, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`,
		runID, projectID, run.ThreadID, run.Mode, run.Prompt, string(run.Status), run.Attempts,
		run.Strategy, run.ErrorKind, run.ErrorMessage, run.DurationMS,
	).Scan(&run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record generation run: %w", err)
	}
	return nil
}

// ListByProject returns the latest runs of a project
func (s *RunStore) ListByProject(ctx context.Context, projectID string, limit int) ([]*models.GenerationRun, error) {
	id, err := parseID(projectID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id::text, project_id::text, thread_id, mode, prompt, status, attempts, strategy,
			error_kind, error_message, duration_ms, created_at
		FROM generation_runs WHERE project_id = $1
		ORDER BY created_at DESC LIMIT $2`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list generation runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.GenerationRun{}
	for rows.Next() {
		var r models.GenerationRun
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.ThreadID, &r.Mode, &r.Prompt, &r.Status, &r.Attempts,
			&r.Strategy, &r.ErrorKind, &r.ErrorMessage, &r.DurationMS, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan generation run: %w", err)
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}
