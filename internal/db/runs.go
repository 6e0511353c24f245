package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/context-crystal/internal/types"
)

// UpsertRun inserts or updates the current status of a run
func (db *DB) UpsertRun(ctx context.Context, status types.PipelineStatus, coarse types.ProcessingStatus) error {
	id, err := uuid.Parse(status.ID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", status.ID, err)
	}

	var metrics []byte
	if status.Metrics != nil {
		if metrics, err = json.Marshal(status.Metrics); err != nil {
			return fmt.Errorf("failed to marshal metrics: %w", err)
		}
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, conversation_id, stage, status, progress, current_step,
		                            error_message, metrics, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE
		 SET stage = EXCLUDED.stage, status = EXCLUDED.status, progress = EXCLUDED.progress,
		     current_step = EXCLUDED.current_step, error_message = EXCLUDED.error_message,
		     metrics = EXCLUDED.metrics, completed_at = EXCLUDED.completed_at, updated_at = NOW()`,
		id, status.ConversationID, string(status.Stage), string(coarse), status.Progress,
		status.CurrentStep, status.Error, metrics, status.StartedAt, status.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert run: %w", err)
	}
	return nil
}

// RecordStage stores the time a run entered a stage
func (db *DB) RecordStage(ctx context.Context, runID uuid.UUID, stage types.Stage, progress float64, at time.Time) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO run_stages (run_id, stage, progress, entered_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (run_id, stage) DO NOTHING`,
		runID, string(stage), progress, at,
	)
	if err != nil {
		return fmt.Errorf("failed to record stage %s: %w", stage, err)
	}
	return nil
}

// GetRun retrieves a pipeline run by ID
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT id, conversation_id, stage, status, progress, COALESCE(current_step, ''),
		        COALESCE(error_message, ''), metrics, started_at, completed_at
		 FROM pipeline_runs WHERE id = $1`,
		runID,
	)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs with optional filters, newest first
func (db *DB) ListRuns(ctx context.Context, filters RunFilters) ([]Run, error) {
	if filters.Limit == 0 {
		filters.Limit = 50
	}

	query := `SELECT id, conversation_id, stage, status, progress, COALESCE(current_step, ''),
		COALESCE(error_message, ''), metrics, started_at, completed_at
		FROM pipeline_runs WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.ConversationID != "" {
		query += fmt.Sprintf(" AND conversation_id = $%d", argNum)
		args = append(args, filters.ConversationID)
		argNum++
	}
	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, filters.Status)
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", argNum)
	args = append(args, filters.Limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ListRunStages retrieves the stage history of a run in entry order
func (db *DB) ListRunStages(ctx context.Context, runID uuid.UUID) ([]RunStage, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT run_id, stage, progress, entered_at FROM run_stages
		 WHERE run_id = $1 ORDER BY entered_at, progress`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list run stages: %w", err)
	}
	defer rows.Close()

	var stages []RunStage
	for rows.Next() {
		var s RunStage
		if err := rows.Scan(&s.RunID, &s.Stage, &s.Progress, &s.EnteredAt); err != nil {
			return nil, fmt.Errorf("failed to scan run stage: %w", err)
		}
		stages = append(stages, s)
	}
	return stages, rows.Err()
}

// DeleteRun deletes a pipeline run and all its artifacts (via cascade)
func (db *DB) DeleteRun(ctx context.Context, runID uuid.UUID) error {
	result, err := db.pool.Exec(ctx, `DELETE FROM pipeline_runs WHERE id = $1`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

// PruneRuns deletes terminal runs completed before the cutoff
func (db *DB) PruneRuns(ctx context.Context, before time.Time) (int64, error) {
	result, err := db.pool.Exec(ctx,
		`DELETE FROM pipeline_runs WHERE completed_at IS NOT NULL AND completed_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return result.RowsAffected(), nil
}

// scanRun scans a run row from either a Row or Rows
func scanRun(row pgx.Row) (*Run, error) {
	var run Run
	var metrics []byte
	if err := row.Scan(&run.ID, &run.ConversationID, &run.Stage, &run.Status, &run.Progress,
		&run.CurrentStep, &run.ErrorMessage, &metrics, &run.StartedAt, &run.CompletedAt); err != nil {
		return nil, err
	}
	if len(metrics) > 0 {
		run.Metrics = json.RawMessage(metrics)
	}
	return &run, nil
}
