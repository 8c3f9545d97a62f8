// Package feed adapts agency RSS feeds into raw entries for extraction.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/codeanster/washington-air-quality/internal/models"
)

const (
	userAgent      = "washington-air-quality/1.0"
	requestTimeout = 15 * time.Second
)

// Fetcher retrieves and parses one feed URL into raw entries.
type Fetcher struct {
	parser *gofeed.Parser
}

// NewFetcher creates a Fetcher with a bounded request timeout.
func NewFetcher() *Fetcher {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	parser.Client = &http.Client{Timeout: requestTimeout}
	return &Fetcher{parser: parser}
}

// Fetch downloads and parses the feed at url. Network and parse failures are
// returned to the caller; the orchestrator logs them per-URL and moves on.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]models.RawEntry, error) {
	parsed, err := f.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching feed %s: %w", url, err)
	}

	entries := make([]models.RawEntry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		entries = append(entries, entryFromItem(item))
	}
	return entries, nil
}

// entryFromItem maps a parsed feed item onto a RawEntry. Agency feeds carry
// the marked-up detail summary in the item description; a few put it in the
// content element instead.
func entryFromItem(item *gofeed.Item) models.RawEntry {
	html := item.Description
	if html == "" {
		html = item.Content
	}
	return models.RawEntry{
		Title:       item.Title,
		Link:        item.Link,
		Summary:     item.Description,
		SummaryHTML: html,
	}
}
