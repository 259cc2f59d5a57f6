package quota

import (
	"context"
	"fmt"

	"careerpilot/internal/logging"
	"careerpilot/internal/models"
	"careerpilot/internal/plans"
)

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed   bool
	Used      int
	Limit     int // plans.Unlimited for unbounded plans
	Remaining int // -1 when unbounded
	Unbounded bool
}

// CounterStore performs the atomic check-then-increment on a single
// (user, feature, month) counter. Allowed increments must be indivisible
// with respect to concurrent calls on the same key: two calls that each fit
// individually must not both succeed when their combined amount exceeds the
// limit. limit < 0 means unbounded; the counter still increments so usage
// stays observable.
//
// On allow, used is the post-increment total. On reject, used is the
// untouched current total.
type CounterStore interface {
	Increment(ctx context.Context, userID int64, feature, monthKey string, amount, limit int) (allowed bool, used int, err error)
	// Current reads the accumulated amount without modifying it.
	Current(ctx context.Context, userID int64, feature, monthKey string) (int, error)
}

// PlanResolver resolves a user's plan tier; failures degrade to the lowest
// tier inside the resolver, never to unbounded.
type PlanResolver interface {
	PlanFor(ctx context.Context, userID int64) plans.Plan
}

// Ledger is the single authority deciding whether a provider call may
// proceed. It resolves the plan, looks up the feature limit and delegates
// the atomic increment to the counter store.
type Ledger struct {
	store  CounterStore
	planFn PlanResolver
	logger *logging.Logger
}

// NewLedger creates a quota ledger over a counter store.
func NewLedger(store CounterStore, planFn PlanResolver) *Ledger {
	return &Ledger{
		store:  store,
		planFn: planFn,
		logger: logging.NewLogger("quota"),
	}
}

// CheckAndConsume atomically consumes amount units of a feature's monthly
// quota. A rejected call never increments the counter.
func (l *Ledger) CheckAndConsume(ctx context.Context, userID int64, feature string, amount int) (Decision, error) {
	if amount <= 0 {
		return Decision{}, fmt.Errorf("quota: amount must be positive, got %d", amount)
	}

	plan := l.planFn.PlanFor(ctx, userID)
	limit := plans.Limit(plan, feature)
	monthKey := models.CurrentMonthKey()

	allowed, used, err := l.store.Increment(ctx, userID, feature, monthKey, amount, limit)
	if err != nil {
		return Decision{}, fmt.Errorf("quota: increment failed for user %d feature %s: %w", userID, feature, err)
	}

	decision := Decision{
		Allowed:   allowed,
		Used:      used,
		Limit:     limit,
		Unbounded: limit == plans.Unlimited,
	}
	if decision.Unbounded {
		decision.Remaining = -1
	} else {
		decision.Remaining = limit - used
		if decision.Remaining < 0 {
			decision.Remaining = 0
		}
	}

	if !allowed {
		l.logger.Info("quota rejected", "user_id", userID, "feature", feature, "used", used, "limit", limit)
	}
	return decision, nil
}

// Usage reports the current month's consumption for one feature without
// consuming anything.
func (l *Ledger) Usage(ctx context.Context, userID int64, feature string) (Decision, error) {
	plan := l.planFn.PlanFor(ctx, userID)
	limit := plans.Limit(plan, feature)
	used, err := l.store.Current(ctx, userID, feature, models.CurrentMonthKey())
	if err != nil {
		return Decision{}, fmt.Errorf("quota: usage read failed for user %d feature %s: %w", userID, feature, err)
	}

	decision := Decision{
		Allowed:   true,
		Used:      used,
		Limit:     limit,
		Unbounded: limit == plans.Unlimited,
	}
	if decision.Unbounded {
		decision.Remaining = -1
	} else {
		decision.Remaining = limit - used
		if decision.Remaining < 0 {
			decision.Remaining = 0
		}
	}
	return decision, nil
}

func counterKey(userID int64, feature, monthKey string) string {
	return fmt.Sprintf("quota:%d:%s:%s", userID, feature, monthKey)
}
