package models

import "time"

// AirQualityRecord represents a row in the air_quality table: one observed
// reading for a location, keyed by (location, report_timestamp).
//
// Location holds the city-level key derived from the feed's full
// "City, Region" string. ReportTimestamp is the feed's local wall-clock
// time with the PDT/PST marker stripped, never converted.
type AirQualityRecord struct {
	ID              int64      `db:"id" json:"id"`
	Title           string     `db:"title" json:"title"`
	Link            string     `db:"link" json:"link"`
	Location        string     `db:"location" json:"location"`
	ReportTimestamp *time.Time `db:"report_timestamp" json:"report_timestamp"`
	PM25            *int       `db:"pm25" json:"pm25"`
	PM10            *int       `db:"pm10" json:"pm10"`
	Ozone           *int       `db:"ozone" json:"ozone"`
	Agency          string     `db:"agency" json:"agency"`
	LastUpdate      *time.Time `db:"last_update" json:"last_update"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}
