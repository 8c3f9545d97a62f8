package feed_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeanster/washington-air-quality/internal/feed"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Seattle Air Quality</title>
    <link>http://example.com/seattle</link>
    <description>Air quality reports</description>
    <item>
      <title>Seattle-Bellevue-Kent Valley, WA - Current Air Quality</title>
      <link>http://example.com/seattle/current</link>
      <description><![CDATA[<div><b>Location:</b> Seattle-Bellevue-Kent Valley, WA</div><div><b>Current Air Quality:</b> 08/20/24 10:00 AM PDT<br>Good - 12 AQI - Particle Pollution (2.5 microns)<br></div>]]></description>
    </item>
    <item>
      <title>Bare item</title>
      <link>http://example.com/bare</link>
    </item>
  </channel>
</rss>`

func TestFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	entries, err := feed.NewFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "Seattle-Bellevue-Kent Valley, WA - Current Air Quality", entries[0].Title)
	assert.Equal(t, "http://example.com/seattle/current", entries[0].Link)
	assert.Contains(t, entries[0].SummaryHTML, "<b>Location:</b>")

	// An item with no description yields an entry with no detail summary.
	assert.Equal(t, "Bare item", entries[1].Title)
	assert.Empty(t, entries[1].SummaryHTML)
}

func TestFetcher_FetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := feed.NewFetcher().Fetch(context.Background(), srv.URL)
	assert.Error(t, err)
}
