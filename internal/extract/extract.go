// Package extract turns raw feed entries into structured air-quality
// candidates. Extraction is pure: no pattern matching failure is an error,
// absent fields simply stay at their defaults.
package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codeanster/washington-air-quality/internal/models"
)

// Defaults used when a feed entry carries no matchable value.
const (
	DefaultTitle    = "No title"
	DefaultLink     = "No link"
	DefaultLocation = "No location"
	DefaultAgency   = "No agency"
)

// Agency feeds report local wall-clock times followed by a PDT/PST marker.
// The marker is stripped before parsing; the time is never converted.
const (
	reportTimeLayout = "1/2/06 3:04 PM"
	lastUpdateLayout = "Mon, 2 Jan 2006 15:04:05"
)

var (
	unavailableRe = regexp.MustCompile(`Current Air Quality unavailable for\s*(.*?)<br`)
	locationRe    = regexp.MustCompile(`<div><b>Location:</b>\s*(.*?)</div>`)
	reportTimeRe  = regexp.MustCompile(`<b>Current Air Quality:</b>\s*(.*?)<br`)
	agencyRe      = regexp.MustCompile(`<div><b>Agency:</b>\s*(.*?)</div>`)
	lastUpdateRe  = regexp.MustCompile(`<div><i>Last Update: (.*?)</i></div>`)
	tzMarkerRe    = regexp.MustCompile(`(?i)\s+P[DS]T$`)

	// The AQI category anchors the match; its value is not retained.
	readingRe = regexp.MustCompile(`(Good|Moderate|Unhealthy for Sensitive Groups|Unhealthy|Very Unhealthy|Hazardous)\s*-\s*(\d+)\s*AQI\s*-\s*([^<]+)`)
)

// Candidate holds the fields extracted from a single feed entry before
// normalization. Pointer fields are nil when the entry carried no value.
type Candidate struct {
	Title           string
	Link            string
	Location        string
	ReportTimestamp *time.Time
	PM25            *int
	PM10            *int
	Ozone           *int
	Agency          string
	LastUpdate      *time.Time
	Unavailable     bool
}

// Extract parses the summary HTML of a feed entry into a Candidate.
// It never fails: entries without a detail summary, or whose summary matches
// none of the known patterns, yield a Candidate of defaults.
func Extract(entry models.RawEntry) Candidate {
	c := Candidate{
		Title:    entry.Title,
		Link:     entry.Link,
		Location: DefaultLocation,
		Agency:   DefaultAgency,
	}
	if c.Title == "" {
		c.Title = DefaultTitle
	}
	if c.Link == "" {
		c.Link = DefaultLink
	}

	html := entry.SummaryHTML
	if html == "" {
		return c
	}

	// A source declaring unavailability carries no reading, date or agency;
	// only the location is taken and everything else is skipped.
	if m := unavailableRe.FindStringSubmatch(html); m != nil {
		c.Location = strings.TrimSpace(m[1])
		c.Unavailable = true
		return c
	}

	if m := locationRe.FindStringSubmatch(html); m != nil {
		c.Location = strings.TrimSpace(m[1])
	}
	if m := reportTimeRe.FindStringSubmatch(html); m != nil {
		c.ReportTimestamp = parseFeedTime(m[1], reportTimeLayout)
	}
	if m := agencyRe.FindStringSubmatch(html); m != nil {
		c.Agency = strings.TrimSpace(m[1])
	}
	if m := lastUpdateRe.FindStringSubmatch(html); m != nil {
		c.LastUpdate = parseFeedTime(m[1], lastUpdateLayout)
	}

	// Feeds list current and forecast values for the same pollutant;
	// the last listed value wins.
	for _, m := range readingRe.FindAllStringSubmatch(html, -1) {
		aqi, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		desc := m[3]
		switch {
		case strings.Contains(desc, "2.5 microns"):
			c.PM25 = &aqi
		case strings.Contains(desc, "10 microns"):
			c.PM10 = &aqi
		case strings.Contains(desc, "Ozone"):
			c.Ozone = &aqi
		}
	}

	return c
}

// parseFeedTime strips the trailing timezone marker and parses the remainder.
// An unparsable date leaves the field absent rather than discarding the
// entry's other fields.
func parseFeedTime(raw, layout string) *time.Time {
	s := tzMarkerRe.ReplaceAllString(strings.TrimSpace(raw), "")
	t, err := time.Parse(layout, s)
	if err != nil {
		log.Debug().Err(err).Str("value", raw).Msg("Unparsable date in feed entry, leaving field absent")
		return nil
	}
	return &t
}

// LocationKey reduces a full "City, Region" location string to its
// city-level component: everything before the first comma, trimmed.
func LocationKey(location string) string {
	key, _, _ := strings.Cut(location, ",")
	return strings.TrimSpace(key)
}

// Normalize converts a Candidate into a persistable record. Partial records
// are valid: a source may report a single pollutant, or none at all.
func Normalize(c Candidate) models.AirQualityRecord {
	return models.AirQualityRecord{
		Title:           c.Title,
		Link:            c.Link,
		Location:        LocationKey(c.Location),
		ReportTimestamp: c.ReportTimestamp,
		PM25:            c.PM25,
		PM10:            c.PM10,
		Ozone:           c.Ozone,
		Agency:          c.Agency,
		LastUpdate:      c.LastUpdate,
	}
}
