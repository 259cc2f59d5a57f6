package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"careerpilot/internal/models"
)

// PostgresStore keeps counters in the usage_counters table. The
// check-then-increment is a single conditional upsert, so the limit holds
// under concurrent increments without any application-side locking, and the
// new total is durable before the call returns.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a Postgres-backed counter store.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const incrementQuery = `
	INSERT INTO usage_counters (user_id, feature, month_key, used, updated_at)
	VALUES ($1, $2, $3, $4, NOW())
	ON CONFLICT (user_id, feature, month_key)
	DO UPDATE SET used = usage_counters.used + EXCLUDED.used, updated_at = NOW()
	WHERE $5 < 0 OR usage_counters.used + EXCLUDED.used <= $5
	RETURNING used
`

const currentQuery = `
	SELECT user_id, feature, month_key, used, updated_at FROM usage_counters
	WHERE user_id = $1 AND feature = $2 AND month_key = $3
`

// Increment performs the conditional upsert. When the guard fails the
// statement affects no row; the reject path re-reads the untouched total
// for reporting.
func (s *PostgresStore) Increment(ctx context.Context, userID int64, feature, monthKey string, amount, limit int) (bool, int, error) {
	// An amount above the limit can never fit; reject without touching the
	// row so the insert path stays guard-free.
	if limit >= 0 && amount > limit {
		used, err := s.Current(ctx, userID, feature, monthKey)
		if err != nil {
			return false, 0, err
		}
		return false, used, nil
	}

	var used int
	err := s.db.QueryRowxContext(ctx, incrementQuery, userID, feature, monthKey, amount, limit).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		current, cerr := s.Current(ctx, userID, feature, monthKey)
		if cerr != nil {
			return false, 0, cerr
		}
		return false, current, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("failed to increment usage counter: %w", err)
	}
	return true, used, nil
}

// Current reads the accumulated amount for a key.
func (s *PostgresStore) Current(ctx context.Context, userID int64, feature, monthKey string) (int, error) {
	var counter models.UsageCounter
	err := s.db.GetContext(ctx, &counter, currentQuery, userID, feature, monthKey)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read usage counter: %w", err)
	}
	return counter.Used, nil
}
