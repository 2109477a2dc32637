// Package ledger keeps the per-feed record of completed downloads.
package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/tutuna/podcatcher/internals/models"
)

// Record is one completed download. URL is the enclosure URL and unique
// within a feed's ledger.
type Record struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Published string `json:"published"`
}

// publishedLayouts are tried in order when reading records. The second one
// is what older ledgers wrote.
var publishedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
}

// PublishedAt parses the Published timestamp.
func (r Record) PublishedAt() (time.Time, error) {
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, r.Published); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Errorf("invalid published timestamp %q", r.Published)
}

// StateCorruptionError reports a ledger that exists but cannot be read.
type StateCorruptionError struct {
	Feed string
	Err  error
}

func (e *StateCorruptionError) Error() string {
	return fmt.Sprintf("ledger of feed %q is corrupt: %v", e.Feed, e.Err)
}

func (e *StateCorruptionError) Unwrap() error { return e.Err }

// Store persists the records of a feed. Load returns an empty slice when
// nothing was stored yet. Save replaces everything stored for the feed and
// must leave the previous state intact when it fails.
type Store interface {
	Load(feed string) ([]Record, error)
	Save(feed string, records []Record) error
}

// Ledger is the in-memory ledger of one feed, owned by a single sync pass.
type Ledger struct {
	feed    string
	store   Store
	records []Record
	urls    map[string]struct{}
}

// Open loads the ledger of feed from store.
func Open(store Store, feed string) (*Ledger, error) {
	records, err := store.Load(feed)
	if err != nil {
		return nil, err
	}
	l := &Ledger{
		feed:  feed,
		store: store,
		urls:  make(map[string]struct{}, len(records)),
	}
	for i, r := range records {
		if _, err := r.PublishedAt(); err != nil {
			return nil, &StateCorruptionError{Feed: feed, Err: errors.Wrapf(err, "record %d", i)}
		}
		if _, dup := l.urls[r.URL]; dup {
			continue
		}
		l.urls[r.URL] = struct{}{}
		l.records = append(l.records, r)
	}
	return l, nil
}

// Feed returns the feed name.
func (l *Ledger) Feed() string { return l.feed }

// IsDownloaded reports whether url was already recorded.
func (l *Ledger) IsDownloaded(url string) bool {
	_, ok := l.urls[url]
	return ok
}

// Record appends a completion for entry. Recording the same enclosure URL
// twice keeps the first record.
func (l *Ledger) Record(entry models.Entry) {
	if l.IsDownloaded(entry.Enclosure) {
		return
	}
	l.urls[entry.Enclosure] = struct{}{}
	l.records = append(l.records, Record{
		Title:     entry.Title,
		URL:       entry.Enclosure,
		Published: entry.Published.UTC().Format(time.RFC3339),
	})
}

// Records returns a copy of all records in insertion order.
func (l *Ledger) Records() []Record {
	return append([]Record(nil), l.records...)
}

// Len is the number of records.
func (l *Ledger) Len() int { return len(l.records) }

// Persist writes all records to the store.
func (l *Ledger) Persist() error {
	if err := l.store.Save(l.feed, l.Records()); err != nil {
		return errors.Wrapf(err, "persist ledger of feed %q", l.feed)
	}
	return nil
}

// Latest returns the record with the newest publication time. Records with
// equal times resolve to the one recorded last.
func (l *Ledger) Latest() (Record, bool) {
	if len(l.records) == 0 {
		return Record{}, false
	}
	type keyed struct {
		at time.Time
		r  Record
	}
	sorted := make([]keyed, 0, len(l.records))
	for _, r := range l.records {
		// validated in Open or written by Record
		at, _ := r.PublishedAt()
		sorted = append(sorted, keyed{at: at, r: r})
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].at.Before(sorted[j].at) })
	return sorted[len(sorted)-1].r, true
}
