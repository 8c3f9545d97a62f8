package models

// RawEntry is one item from a monitoring agency feed, as delivered by the
// feed adapter. Transient: never persisted.
type RawEntry struct {
	Title       string
	Link        string
	Summary     string
	SummaryHTML string // detail summary with markup; empty when the item carries none
}
