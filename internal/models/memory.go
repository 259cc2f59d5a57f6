package models

import (
	"encoding/json"
	"time"
)

// MemoryEntry is a small serialized context blob keyed by (user, scope key).
// It is an optimization cache, not authoritative data: stale reads are
// tolerable and concurrent writes resolve last-write-wins.
type MemoryEntry struct {
	UserID    int64           `json:"user_id"`
	ScopeKey  string          `json:"scope_key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}
