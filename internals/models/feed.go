package models

import (
	"time"
)

// Feed is a parsed podcast feed. It is built once per fetched document and
// not modified afterwards.
type Feed struct {
	Title       string
	Subtitle    string
	Description string
	Link        string
	Updated     time.Time
	entries     []Entry
}

// NewFeed returns a Feed holding a copy of entries in the given order.
func NewFeed(title, subtitle, description, link string, updated time.Time, entries []Entry) *Feed {
	f := &Feed{
		Title:       title,
		Subtitle:    subtitle,
		Description: description,
		Link:        link,
		Updated:     updated,
	}
	f.entries = append(make([]Entry, 0, len(entries)), entries...)
	return f
}

// Entries returns the feed entries in document order. When newerThan is set,
// only entries published at or after it are returned. Each call returns a
// fresh slice, so callers may reorder the result freely.
func (f *Feed) Entries(newerThan *time.Time) []Entry {
	out := make([]Entry, 0, len(f.entries))
	for _, e := range f.entries {
		if newerThan != nil && e.Published.Before(*newerThan) {
			continue
		}
		out = append(out, e)
	}
	return out
}
