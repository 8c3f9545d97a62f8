package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/codeanster/washington-air-quality/internal/database"
	"github.com/codeanster/washington-air-quality/internal/models"
)

// Trend describes the percent change of each pollutant between the earliest
// and latest reading of a location inside a window. A nil change means the
// pollutant was absent at one or both ends of the window.
type Trend struct {
	Location    string   `json:"location"`
	Window      string   `json:"window"`
	PM25Change  *float64 `json:"pm25_change"`
	PM10Change  *float64 `json:"pm10_change"`
	OzoneChange *float64 `json:"ozone_change"`
	Direction   string   `json:"trend_direction"`
}

// AirQualityRepository defines read operations over stored records.
type AirQualityRepository interface {
	LatestForLocation(ctx context.Context, location string) (*models.AirQualityRecord, error)
	ExceedingLocations(ctx context.Context, threshold int) ([]string, error)
	TrendForLocation(ctx context.Context, location, window string, since time.Time) (*Trend, error)
	FetchRecords(ctx context.Context, limit int, since *time.Time, cursorTimestamp *time.Time, cursorID *int64) ([]models.AirQualityRecord, error)
}

// sqlxRepository implements AirQualityRepository using sqlx.
type sqlxRepository struct {
	db *database.DB
}

// NewRepository creates a new repository instance.
func NewRepository(db *database.DB) AirQualityRepository {
	return &sqlxRepository{db: db}
}

// LatestForLocation returns the most recent record for a location key, or
// nil when the location has never been observed.
func (r *sqlxRepository) LatestForLocation(ctx context.Context, location string) (*models.AirQualityRecord, error) {
	var rec models.AirQualityRecord
	err := r.db.GetContext(ctx, &rec, `
		SELECT * FROM air_quality
		WHERE location = ?
		ORDER BY report_timestamp DESC
		LIMIT 1`, location)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return &rec, nil
}

// ExceedingLocations returns the location keys whose reading on the most
// recent report date has any pollutant above the threshold.
func (r *sqlxRepository) ExceedingLocations(ctx context.Context, threshold int) ([]string, error) {
	var locations []string
	err := r.db.SelectContext(ctx, &locations, `
		SELECT DISTINCT location FROM air_quality
		WHERE report_timestamp = (SELECT MAX(report_timestamp) FROM air_quality)
		AND (pm25 > ? OR pm10 > ? OR ozone > ?)
		ORDER BY location`, threshold, threshold, threshold)
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return locations, nil
}

// TrendForLocation compares the earliest and latest records of a location
// within the window and classifies the direction. Returns nil when the
// window holds no dated records for the location.
func (r *sqlxRepository) TrendForLocation(ctx context.Context, location, window string, since time.Time) (*Trend, error) {
	// A NULL report_timestamp never satisfies the range comparison, so
	// unavailability records are excluded from trends automatically.
	const boundQuery = `
		SELECT * FROM air_quality
		WHERE location = ? AND report_timestamp >= ?
		ORDER BY report_timestamp %s
		LIMIT 1`

	var earliest, latest models.AirQualityRecord

	err := r.db.GetContext(ctx, &earliest, fmt.Sprintf(boundQuery, "ASC"), location, since)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("database query failed: %w", err)
	}

	if err := r.db.GetContext(ctx, &latest, fmt.Sprintf(boundQuery, "DESC"), location, since); err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}

	trend := &Trend{
		Location:    location,
		Window:      window,
		PM25Change:  percentChange(earliest.PM25, latest.PM25),
		PM10Change:  percentChange(earliest.PM10, latest.PM10),
		OzoneChange: percentChange(earliest.Ozone, latest.Ozone),
	}
	trend.Direction = classifyDirection(trend.PM25Change, trend.PM10Change, trend.OzoneChange)
	return trend, nil
}

// FetchRecords retrieves stored records in creation order, keyed for cursor
// pagination on (created_at, id).
func (r *sqlxRepository) FetchRecords(ctx context.Context, limit int, since *time.Time, cursorTimestamp *time.Time, cursorID *int64) ([]models.AirQualityRecord, error) {
	var records []models.AirQualityRecord
	var query string
	var args []any

	const baseQuery = `SELECT * FROM air_quality `
	const orderBy = ` ORDER BY created_at ASC, id ASC LIMIT ?`

	if cursorTimestamp != nil && cursorID != nil {
		query = baseQuery + `WHERE (created_at > ?) OR (created_at = ? AND id > ?)` + orderBy
		args = append(args, cursorTimestamp.UTC(), cursorTimestamp.UTC(), *cursorID, limit)
	} else if since != nil {
		query = baseQuery + `WHERE created_at > ?` + orderBy
		args = append(args, since.UTC(), limit)
	} else {
		query = baseQuery + `WHERE 1=1` + orderBy
		args = append(args, limit)
	}

	err := r.db.SelectContext(ctx, &records, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []models.AirQualityRecord{}, nil
		}
		return nil, fmt.Errorf("database query failed: %w", err)
	}

	return records, nil
}

// percentChange returns the relative change between two readings, rounded to
// two decimals, or nil when either end is absent or the start is zero.
func percentChange(start, end *int) *float64 {
	if start == nil || end == nil || *start == 0 {
		return nil
	}
	change := math.Round(float64(*end-*start)/float64(*start)*100*100) / 100
	return &change
}

// classifyDirection labels a trend improving when every present change is
// negative, worsening when every present change is positive, and mixed
// otherwise (including when no change is present at all).
func classifyDirection(changes ...*float64) string {
	var present []float64
	for _, c := range changes {
		if c != nil {
			present = append(present, *c)
		}
	}
	if len(present) == 0 {
		return "mixed"
	}

	improving, worsening := true, true
	for _, c := range present {
		if c >= 0 {
			improving = false
		}
		if c <= 0 {
			worsening = false
		}
	}

	switch {
	case improving:
		return "improving"
	case worsening:
		return "worsening"
	default:
		return "mixed"
	}
}
