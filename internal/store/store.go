// Package store persists air-quality records with deduplication on
// (location, report_timestamp) and keeps per-source polling bookkeeping.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codeanster/washington-air-quality/internal/database"
	"github.com/codeanster/washington-air-quality/internal/models"
)

// A source is marked failed after this many consecutive poll failures.
const maxSourceFailures = 10

// Store writes records and source status to the database.
type Store struct {
	db *database.DB
}

// New creates a Store on an existing database connection.
func New(db *database.DB) *Store {
	return &Store{db: db}
}

// UpsertIfAbsent inserts the record unless a row with the same
// (location, report_timestamp) already exists. A conflicting insert is a
// silent skip, never an update or an error. Each call commits independently:
// a failure here has no effect on records stored before or after it.
//
// NULL report timestamps are valid key components. SQLite treats NULLs as
// distinct in unique constraints, so unavailability records accumulate
// rather than conflate.
func (s *Store) UpsertIfAbsent(ctx context.Context, rec *models.AirQualityRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO air_quality (title, link, location, report_timestamp, pm25, pm10, ozone, agency, last_update)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(location, report_timestamp) DO NOTHING;`,
		rec.Title, rec.Link, rec.Location, rec.ReportTimestamp,
		rec.PM25, rec.PM10, rec.Ozone, rec.Agency, rec.LastUpdate,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert record for %q: %w", rec.Location, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for %q: %w", rec.Location, err)
	}

	if rowsAffected == 0 {
		log.Debug().
			Str("location", rec.Location).
			Interface("report_timestamp", rec.ReportTimestamp).
			Msg("Duplicate reading detected")
		return false, nil
	}
	return true, nil
}

// MarkSourcePolled records the outcome of one poll of a source. Failures
// increment the failure count until the source is marked failed; a success
// resets it.
func (s *Store) MarkSourcePolled(ctx context.Context, source *models.Source, fetchErr error) error {
	updateCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	now := time.Now()

	if fetchErr == nil {
		_, err := s.db.ExecContext(updateCtx, `
			UPDATE sources
			SET status = 'active', failures_count = 0, last_error = NULL, last_polled_at = ?, updated_at = ?
			WHERE id = ?`,
			now, now, source.ID)
		if err != nil {
			return fmt.Errorf("failed to update source %d (%s): %w", source.ID, source.URL, err)
		}
		return nil
	}

	source.FailuresCount++
	source.LastError = sql.NullString{String: fetchErr.Error(), Valid: true}
	if source.FailuresCount > maxSourceFailures {
		source.Status = "failed"
	}

	_, err := s.db.ExecContext(updateCtx, `
		UPDATE sources
		SET status = ?, failures_count = ?, last_error = ?, last_polled_at = ?, updated_at = ?
		WHERE id = ?`,
		source.Status, source.FailuresCount, source.LastError, now, now, source.ID)
	if err != nil {
		return fmt.Errorf("failed to update source %d (%s): %w", source.ID, source.URL, err)
	}
	return nil
}
