package extract_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeanster/washington-air-quality/internal/extract"
	"github.com/codeanster/washington-air-quality/internal/models"
)

// summaryHTML builds a detail summary in the shape AirNow-style feeds publish.
const fullSummary = `<div><b>Location:</b> Seattle-Bellevue-Kent Valley, WA</div>` +
	`<div><b>Agency:</b> Washington Dept. of Ecology</div>` +
	`<div><b>Current Air Quality:</b> 08/20/24 10:00 AM PDT<br>` +
	`Good - 12 AQI - Particle Pollution (2.5 microns)<br>` +
	`Moderate - 55 AQI - Particle Pollution (10 microns)<br>` +
	`Good - 31 AQI - Ozone<br></div>` +
	`<div><i>Last Update: Tue, 20 Aug 2024 10:30:45 PDT</i></div>`

func TestExtract_NoDetailSummary(t *testing.T) {
	c := extract.Extract(models.RawEntry{Title: "Seattle Air Quality", Link: "http://example.com/seattle"})

	assert.Equal(t, "Seattle Air Quality", c.Title)
	assert.Equal(t, "http://example.com/seattle", c.Link)
	assert.Equal(t, extract.DefaultLocation, c.Location)
	assert.Equal(t, extract.DefaultAgency, c.Agency)
	assert.Nil(t, c.ReportTimestamp)
	assert.Nil(t, c.PM25)
	assert.Nil(t, c.PM10)
	assert.Nil(t, c.Ozone)
	assert.Nil(t, c.LastUpdate)
	assert.False(t, c.Unavailable)
}

func TestExtract_MissingTitleAndLink(t *testing.T) {
	c := extract.Extract(models.RawEntry{})

	assert.Equal(t, extract.DefaultTitle, c.Title)
	assert.Equal(t, extract.DefaultLink, c.Link)
}

func TestExtract_FullSummary(t *testing.T) {
	c := extract.Extract(models.RawEntry{
		Title:       "Seattle Air Quality",
		Link:        "http://example.com/seattle",
		SummaryHTML: fullSummary,
	})

	assert.Equal(t, "Seattle-Bellevue-Kent Valley, WA", c.Location)
	assert.Equal(t, "Washington Dept. of Ecology", c.Agency)

	require.NotNil(t, c.ReportTimestamp)
	assert.Equal(t, time.Date(2024, 8, 20, 10, 0, 0, 0, time.UTC), *c.ReportTimestamp)

	require.NotNil(t, c.LastUpdate)
	assert.Equal(t, time.Date(2024, 8, 20, 10, 30, 45, 0, time.UTC), *c.LastUpdate)

	require.NotNil(t, c.PM25)
	assert.Equal(t, 12, *c.PM25)
	require.NotNil(t, c.PM10)
	assert.Equal(t, 55, *c.PM10)
	require.NotNil(t, c.Ozone)
	assert.Equal(t, 31, *c.Ozone)

	assert.False(t, c.Unavailable)
}

func TestExtract_Unavailable(t *testing.T) {
	c := extract.Extract(models.RawEntry{
		Title:       "Springfield Air Quality",
		Link:        "http://example.com/springfield",
		SummaryHTML: `Current Air Quality unavailable for Springfield<br>` + fullSummary,
	})

	assert.Equal(t, "Springfield", c.Location)
	assert.True(t, c.Unavailable)

	// Unavailability is an early exit: nothing else is extracted even when
	// other patterns would match.
	assert.Nil(t, c.ReportTimestamp)
	assert.Nil(t, c.PM25)
	assert.Nil(t, c.PM10)
	assert.Nil(t, c.Ozone)
	assert.Nil(t, c.LastUpdate)
	assert.Equal(t, extract.DefaultAgency, c.Agency)
}

// Documented assumption: feeds list current and forecast values for the same
// pollutant, so the last-listed value is kept. This matches observed feed
// structure, not a published contract.
func TestExtract_LastMatchWins(t *testing.T) {
	c := extract.Extract(models.RawEntry{
		SummaryHTML: `<div><b>Current Air Quality:</b> 08/20/24 10:00 AM PDT<br>` +
			`Moderate - 45 AQI - Ozone<br>` +
			`Good - 30 AQI - Ozone<br></div>`,
	})

	require.NotNil(t, c.Ozone)
	assert.Equal(t, 30, *c.Ozone)
}

func TestExtract_UnclassifiedPollutantIgnored(t *testing.T) {
	c := extract.Extract(models.RawEntry{
		SummaryHTML: `<div><b>Current Air Quality:</b> 08/20/24 10:00 AM PDT<br>` +
			`Good - 18 AQI - Carbon Monoxide<br></div>`,
	})

	assert.Nil(t, c.PM25)
	assert.Nil(t, c.PM10)
	assert.Nil(t, c.Ozone)
}

// An unparsable date leaves only that field absent; pollutants and agency
// from the same entry are kept.
func TestExtract_MalformedReportDate(t *testing.T) {
	c := extract.Extract(models.RawEntry{
		SummaryHTML: `<div><b>Agency:</b> Washington Dept. of Ecology</div>` +
			`<div><b>Current Air Quality:</b> not a date<br>` +
			`Good - 12 AQI - Particle Pollution (2.5 microns)<br></div>`,
	})

	assert.Nil(t, c.ReportTimestamp)
	assert.Equal(t, "Washington Dept. of Ecology", c.Agency)
	require.NotNil(t, c.PM25)
	assert.Equal(t, 12, *c.PM25)
}

func TestExtract_TimezoneMarkerVariants(t *testing.T) {
	tests := []struct {
		name    string
		summary string
	}{
		{"uppercase PDT", `<div><b>Current Air Quality:</b> 1/5/24 9:30 PM PDT<br></div>`},
		{"uppercase PST", `<div><b>Current Air Quality:</b> 1/5/24 9:30 PM PST<br></div>`},
		{"lowercase pst", `<div><b>Current Air Quality:</b> 1/5/24 9:30 PM pst<br></div>`},
		{"no marker", `<div><b>Current Air Quality:</b> 1/5/24 9:30 PM<br></div>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := extract.Extract(models.RawEntry{SummaryHTML: tt.summary})
			require.NotNil(t, c.ReportTimestamp)
			assert.Equal(t, time.Date(2024, 1, 5, 21, 30, 0, 0, time.UTC), *c.ReportTimestamp)
		})
	}
}

func TestLocationKey(t *testing.T) {
	tests := []struct {
		location string
		want     string
	}{
		{"Springfield, IL", "Springfield"},
		{"Seattle-Bellevue-Kent Valley, WA", "Seattle-Bellevue-Kent Valley"},
		{"Spokane", "Spokane"},
		{"  Tacoma , WA", "Tacoma"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, extract.LocationKey(tt.location), "location %q", tt.location)
	}
}

func TestNormalize(t *testing.T) {
	ts := time.Date(2024, 8, 20, 10, 0, 0, 0, time.UTC)
	pm25 := 12

	rec := extract.Normalize(extract.Candidate{
		Title:           "Seattle Air Quality",
		Link:            "http://example.com/seattle",
		Location:        "Springfield, IL",
		ReportTimestamp: &ts,
		PM25:            &pm25,
		Agency:          "Washington Dept. of Ecology",
	})

	assert.Equal(t, "Springfield", rec.Location)
	assert.Equal(t, "Seattle Air Quality", rec.Title)
	require.NotNil(t, rec.ReportTimestamp)
	assert.Equal(t, ts, *rec.ReportTimestamp)
	require.NotNil(t, rec.PM25)
	assert.Equal(t, 12, *rec.PM25)

	// Missing pollutants do not invalidate a record.
	assert.Nil(t, rec.PM10)
	assert.Nil(t, rec.Ozone)
	assert.Nil(t, rec.LastUpdate)
}
