package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"careerpilot/internal/models"
)

// RunRepository persists orchestration run records. Rows are append-only:
// created pending, finalized exactly once, never mutated afterwards.
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a pending run record. The insert is durable before the
// orchestration proceeds to the provider call.
func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = models.RunPending
	}

	query := `
		INSERT INTO runs (
			id, user_id, feature, model, prompt_version,
			prompt_tokens, completion_tokens, cost_usd,
			status, error_kind, degraded, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		run.ID, run.UserID, run.Feature, run.Model, run.PromptVersion,
		run.PromptTokens, run.CompletionTokens, run.CostUSD,
		run.Status, run.ErrorKind, run.Degraded, run.DurationMS,
	).Scan(&run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// Finalize moves a pending run to its terminal state. The status guard
// makes a second finalization a no-op error rather than an overwrite.
func (r *RunRepository) Finalize(ctx context.Context, run *models.Run) error {
	now := time.Now().UTC()
	run.FinishedAt = &now

	query := `
		UPDATE runs SET
			model = $2, prompt_tokens = $3, completion_tokens = $4,
			cost_usd = $5, status = $6, error_kind = $7, degraded = $8,
			duration_ms = $9, finished_at = $10
		WHERE id = $1 AND status = $11
	`

	result, err := r.db.conn.ExecContext(
		ctx, query,
		run.ID, run.Model, run.PromptTokens, run.CompletionTokens,
		run.CostUSD, run.Status, run.ErrorKind, run.Degraded,
		run.DurationMS, run.FinishedAt, models.RunPending,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read finalize result: %w", err)
	}
	if affected == 0 {
		return ErrRunFinalized
	}
	return nil
}

// GetByID fetches a single run record.
func (r *RunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	var run models.Run
	err := r.db.conn.GetContext(ctx, &run, `SELECT * FROM runs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// ListByUser returns a user's most recent runs.
func (r *RunRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []models.Run
	err := r.db.conn.SelectContext(ctx, &runs, `
		SELECT * FROM runs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}
