package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"careerpilot/internal/models"
)

// ContextRepository performs the read-only lookups the prompt pipeline
// draws context from. It never mutates domain state.
type ContextRepository struct {
	db *DB
}

// NewContextRepository creates a new context repository
func NewContextRepository(db *DB) *ContextRepository {
	return &ContextRepository{db: db}
}

// Profile fetches a user's profile slice.
func (r *ContextRepository) Profile(ctx context.Context, userID int64) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.conn.GetContext(ctx, &profile, `
		SELECT user_id, full_name, email, headline, visa_status
		FROM profiles WHERE user_id = $1
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &profile, nil
}

// Job fetches a tracked job posting.
func (r *ContextRepository) Job(ctx context.Context, jobID int64) (*models.Job, error) {
	var job models.Job
	err := r.db.conn.GetContext(ctx, &job, `
		SELECT id, user_id, company, title, jd_text, url, status, location
		FROM jobs WHERE id = $1
	`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// Documents lists a user's documents, optionally filtered by type.
func (r *ContextRepository) Documents(ctx context.Context, userID int64, filter models.DocumentFilter) ([]models.Document, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	var docs []models.Document
	var err error
	if filter.Type != "" {
		err = r.db.conn.SelectContext(ctx, &docs, `
			SELECT id, user_id, title, type, content, created_at
			FROM documents
			WHERE user_id = $1 AND type = $2
			ORDER BY created_at DESC
			LIMIT $3
		`, userID, filter.Type, limit)
	} else {
		err = r.db.conn.SelectContext(ctx, &docs, `
			SELECT id, user_id, title, type, content, created_at
			FROM documents
			WHERE user_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		`, userID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// ResumeVersions lists a user's résumé revisions, newest first.
func (r *ContextRepository) ResumeVersions(ctx context.Context, userID int64, limit int) ([]models.ResumeVersion, error) {
	if limit <= 0 {
		limit = 5
	}
	var versions []models.ResumeVersion
	err := r.db.conn.SelectContext(ctx, &versions, `
		SELECT id, user_id, label, content, created_at
		FROM resume_versions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list resume versions: %w", err)
	}
	return versions, nil
}
