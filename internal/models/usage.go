package models

import "time"

// UsageCounter is a monthly-scoped accumulator keyed by
// (user, feature, month key). A new month key starts a fresh counter by
// absence; old keys remain as history.
type UsageCounter struct {
	UserID    int64     `db:"user_id"`
	Feature   string    `db:"feature"`
	MonthKey  string    `db:"month_key"`
	Used      int       `db:"used"`
	UpdatedAt time.Time `db:"updated_at"`
}

// MonthKey returns the calendar-month period key ("2006-01") for t in UTC.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// CurrentMonthKey returns the period key for the current month.
func CurrentMonthKey() string {
	return MonthKey(time.Now())
}
