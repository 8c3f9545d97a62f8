package models

import (
	"database/sql"
	"time"
)

// Source represents a row in the 'sources' table: one monitoring agency feed URL.
type Source struct {
	ID            int64          `db:"id"`
	URL           string         `db:"url"`
	Comments      sql.NullString `db:"comments"`
	Status        string         `db:"status"`
	FailuresCount int            `db:"failures_count"`
	LastError     sql.NullString `db:"last_error"`
	LastPolledAt  sql.NullTime   `db:"last_polled_at"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
	DeletedAt     sql.NullTime   `db:"deleted_at"`
}

// NewSource creates a new Source with default values
func NewSource() *Source {
	now := time.Now()
	return &Source{
		Status:    "active",
		CreatedAt: now,
		UpdatedAt: now,
	}
}
