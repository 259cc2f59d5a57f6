package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SubscriptionRepository reads the raw plan string for a user. Subscription
// lifecycle itself is owned by billing; this is a read-only seam.
type SubscriptionRepository struct {
	db *DB
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// PlanType returns the plan string for a user's active subscription, or ""
// when none exists. Callers normalize "" to the lowest tier.
func (r *SubscriptionRepository) PlanType(ctx context.Context, userID int64) (string, error) {
	var planType string
	err := r.db.conn.GetContext(ctx, &planType, `
		SELECT plan_type FROM subscriptions
		WHERE user_id = $1 AND status = 'active'
		ORDER BY created_at DESC
		LIMIT 1
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get subscription: %w", err)
	}
	return planType, nil
}
