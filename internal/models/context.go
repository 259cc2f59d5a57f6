package models

import "time"

// Profile is the slice of a user profile the prompt pipeline reads.
type Profile struct {
	UserID     int64   `db:"user_id"`
	FullName   string  `db:"full_name"`
	Email      string  `db:"email"`
	Headline   *string `db:"headline"`
	VisaStatus *string `db:"visa_status"`
}

// Job is a tracked job posting.
type Job struct {
	ID       int64   `db:"id"`
	UserID   int64   `db:"user_id"`
	Company  string  `db:"company"`
	Title    string  `db:"title"`
	JDText   string  `db:"jd_text"`
	URL      *string `db:"url"`
	Status   string  `db:"status"`
	Location *string `db:"location"`
}

// Document is a stored user document (résumé, cover letter, notes).
type Document struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Title     string    `db:"title"`
	Type      string    `db:"type"`
	Content   string    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
}

// DocumentFilter narrows document lookups.
type DocumentFilter struct {
	Type  string
	Limit int
}

// ResumeVersion is one revision of a user's résumé.
type ResumeVersion struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Label     string    `db:"label"`
	Content   string    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
}
