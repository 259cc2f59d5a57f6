package plans

import (
	"context"
	"strconv"

	"careerpilot/internal/logging"
)

// SubscriptionSource reads the raw plan string for a user from wherever
// subscriptions live. It is the narrow seam to the account-management
// collaborator.
type SubscriptionSource interface {
	PlanType(ctx context.Context, userID int64) (string, error)
}

// Cache is the subset of the storage LRU cache the lookup needs.
type Cache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{})
}

// Lookup resolves a user's plan tier, defaulting to the lowest tier when no
// subscription exists or the source errs.
type Lookup struct {
	source SubscriptionSource
	cache  Cache
	logger *logging.Logger
}

// NewLookup creates a plan lookup. cache may be nil to disable caching.
func NewLookup(source SubscriptionSource, cache Cache) *Lookup {
	return &Lookup{
		source: source,
		cache:  cache,
		logger: logging.NewLogger("plan-lookup"),
	}
}

// PlanFor returns the plan tier for a user. Failures degrade to the free
// tier rather than propagating: quota gating must never fail open.
func (l *Lookup) PlanFor(ctx context.Context, userID int64) Plan {
	key := cacheKey(userID)
	if l.cache != nil {
		if cached, ok := l.cache.Get(key); ok {
			if plan, ok := cached.(Plan); ok {
				return plan
			}
		}
	}

	raw, err := l.source.PlanType(ctx, userID)
	if err != nil {
		l.logger.Warn("plan lookup failed, defaulting to free", "user_id", userID, "error", err)
		return PlanFree
	}

	plan := Normalize(raw)
	if l.cache != nil {
		l.cache.Set(key, plan)
	}
	return plan
}

func cacheKey(userID int64) string {
	return "plan:" + strconv.FormatInt(userID, 10)
}
