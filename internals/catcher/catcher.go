// Package catcher runs sync passes: for each feed it fetches the document,
// works out which episodes are new, downloads them oldest first, tags them
// and records them in the feed's ledger.
package catcher

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/tutuna/podcatcher/internals/config"
	"github.com/tutuna/podcatcher/internals/feeds"
	"github.com/tutuna/podcatcher/internals/ledger"
	"github.com/tutuna/podcatcher/internals/models"
	"github.com/tutuna/podcatcher/internals/replacer"
	"github.com/tutuna/podcatcher/internals/tagger"
)

const genreKey = "genre"

// Fetcher retrieves feed documents and media files.
type Fetcher interface {
	FetchText(ctx context.Context, url string, verifyTLS bool) (string, error)
	FetchToFile(ctx context.Context, url, dest string, verifyTLS bool) (int64, error)
}

// Tagger writes tags into downloaded files it supports.
type Tagger interface {
	Supports(path string) bool
	WriteTags(path string, tags []tagger.Tag) error
}

// Notifier is told about every completed download.
type Notifier interface {
	Downloaded(feed string, entry models.Entry, path string) error
}

// ErrLocked is returned when another process is syncing the same feed.
var ErrLocked = errors.New("feed is being synchronized by another process")

// Params wires a Catcher. Tagger and Notifier are optional.
type Params struct {
	Settings config.Settings
	Fetcher  Fetcher
	Store    ledger.Store
	Tagger   Tagger
	Notifier Notifier
	DryRun   bool
	Verbose  bool
}

// Catcher synchronizes feeds one at a time.
type Catcher struct {
	settings config.Settings
	fetcher  Fetcher
	store    ledger.Store
	tagger   Tagger
	notifier Notifier
	parser   *feeds.Parser
	dryRun   bool
	verbose  bool
}

// New creates a Catcher.
func New(p Params) *Catcher {
	return &Catcher{
		settings: p.Settings,
		fetcher:  p.Fetcher,
		store:    p.Store,
		tagger:   p.Tagger,
		notifier: p.Notifier,
		parser:   feeds.NewParser(),
		dryRun:   p.DryRun,
		verbose:  p.Verbose,
	}
}

// Result describes one feed's pass.
type Result struct {
	Feed string
	// Skipped is set for disabled feeds.
	Skipped bool
	// Candidates are the new episodes in download order.
	Candidates []models.Entry
	// Downloaded holds the paths of completed downloads in order.
	Downloaded []string
	// Interrupted is set when the context was cancelled before all
	// candidates were processed.
	Interrupted bool
	Err         error
}

func (c *Catcher) debugf(format string, args ...interface{}) {
	if c.verbose {
		log.Printf(format, args...)
	}
}

// SyncAll synchronizes feeds in order. A failing feed is logged and does
// not stop the others; cancellation stops before the next feed.
func (c *Catcher) SyncAll(ctx context.Context, feedConfigs []config.FeedConfig) []Result {
	results := make([]Result, 0, len(feedConfigs))
	for _, fc := range feedConfigs {
		if ctx.Err() != nil {
			log.Printf("Interrupted, not checking remaining %d feeds.", len(feedConfigs)-len(results))
			break
		}
		res, err := c.Sync(ctx, fc)
		if err != nil {
			log.Printf("Error synchronizing feed '%s': %v", fc.Name, err)
			res.Err = err
		}
		results = append(results, res)
		if res.Interrupted {
			break
		}
	}
	return results
}

// Sync runs one pass over a single feed. The ledger is persisted whenever
// at least one download was attempted, including after a failed download
// or an interrupt.
func (c *Catcher) Sync(ctx context.Context, fc config.FeedConfig) (Result, error) {
	eff := config.Resolve(c.settings, fc)
	res := Result{Feed: eff.Name}
	if !eff.Enabled {
		log.Printf("Feed '%s' is disabled -> skipping.", eff.Name)
		res.Skipped = true
		return res, nil
	}
	if ctx.Err() != nil {
		res.Interrupted = true
		return res, nil
	}

	unlock, err := c.lock(eff.Name)
	if err != nil {
		return res, err
	}
	defer unlock()

	log.Printf("Checking feed '%s' (%s)", eff.Name, eff.URL)
	raw, err := c.fetcher.FetchText(ctx, eff.URL, eff.StrictHTTPS)
	if err != nil {
		if ctx.Err() != nil {
			res.Interrupted = true
			return res, nil
		}
		return res, errors.Wrapf(err, "fetch feed %q", eff.Name)
	}
	feed, err := c.parser.Parse(raw)
	if err != nil {
		return res, errors.Wrapf(err, "parse feed %q", eff.Name)
	}

	l, err := ledger.Open(c.store, eff.Name)
	if err != nil {
		return res, err
	}

	res.Candidates = Candidates(feed, l, eff.Cutoff)
	if len(res.Candidates) == 0 {
		log.Printf("Feed '%s' has no new episodes.", eff.Name)
		return res, nil
	}
	log.Printf("Feed '%s' has %d new episodes.", eff.Name, len(res.Candidates))
	if c.dryRun {
		for _, e := range res.Candidates {
			log.Printf("Would download '%s' (%s) from %s", e.Title, e.Published.Format(time.RFC3339), e.Enclosure)
		}
		return res, nil
	}

	err = c.download(ctx, eff, feed, l, &res)
	if perr := l.Persist(); perr != nil {
		if err == nil {
			return res, perr
		}
		log.Printf("Error persisting ledger of feed '%s': %v", eff.Name, perr)
	}
	if latest, ok := l.Latest(); ok {
		c.debugf("Latest downloaded episode of '%s': '%s' (%s)", eff.Name, latest.Title, latest.Published)
	}
	return res, err
}

// Candidates returns the entries of feed whose enclosure is not in the
// ledger and that were published at or after cutoff, oldest first. Entries
// repeating an enclosure URL are only returned once.
func Candidates(feed *models.Feed, l *ledger.Ledger, cutoff *time.Time) []models.Entry {
	seen := make(map[string]bool)
	var out []models.Entry
	for _, e := range feed.Entries(nil) {
		if cutoff != nil && e.Published.Before(*cutoff) {
			continue
		}
		if l.IsDownloaded(e.Enclosure) || seen[e.Enclosure] {
			continue
		}
		seen[e.Enclosure] = true
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Published.Before(out[j].Published) })
	return out
}

func (c *Catcher) download(ctx context.Context, eff config.Effective, feed *models.Feed, l *ledger.Ledger, res *Result) error {
	destReady := false
	for i := range res.Candidates {
		if ctx.Err() != nil {
			log.Printf("Interrupted, %d episodes of '%s' left for the next run.", len(res.Candidates)-i, eff.Name)
			res.Interrupted = true
			return nil
		}
		entry := res.Candidates[i]
		rctx := replacer.Context{Name: eff.Name, Feed: feed, Entry: &entry}

		name, err := replacer.Render(eff.Filename, rctx)
		if err != nil {
			return errors.Wrapf(err, "render file name of episode %q", entry.Title)
		}
		name = sanitizeFilename(name)
		if name == "" {
			return errors.Errorf("file name template %q renders empty for episode %q", eff.Filename, entry.Title)
		}

		if !destReady {
			if err := os.MkdirAll(eff.Destination, 0o755); err != nil {
				return errors.Wrapf(err, "create download dir %s", eff.Destination)
			}
			destReady = true
		}
		dest := uniquePath(filepath.Join(eff.Destination, name))

		log.Printf("Downloading episode %d/%d of '%s': '%s'", i+1, len(res.Candidates), eff.Name, entry.Title)
		// An interrupt only takes effect between episodes.
		n, err := c.fetcher.FetchToFile(context.WithoutCancel(ctx), entry.Enclosure, dest, eff.StrictHTTPS)
		if err != nil {
			return errors.Wrapf(err, "download episode %q", entry.Title)
		}
		c.debugf("Wrote %d bytes to %s", n, dest)

		if err := c.tag(eff, rctx, dest); err != nil {
			return errors.Wrapf(err, "tag episode %q", entry.Title)
		}

		l.Record(entry)
		res.Downloaded = append(res.Downloaded, dest)

		if c.notifier != nil {
			if err := c.notifier.Downloaded(eff.Name, entry, dest); err != nil {
				log.Printf("Could not send notification for '%s': %v", entry.Title, err)
			}
		}
	}
	return nil
}

// Tags renders the effective tag mapping for one entry. The entry's
// categories become the genre unless the mapping sets one.
func Tags(eff config.Effective, rctx replacer.Context) ([]tagger.Tag, error) {
	tags := make([]tagger.Tag, 0, len(eff.Tags)+1)
	for _, key := range eff.Tags.Keys() {
		tmpl, err := eff.Tag(key)
		if err != nil {
			return nil, err
		}
		value, err := replacer.Render(tmpl, rctx)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tagger.Tag{Key: key, Value: value})
	}
	if _, ok := eff.Tags.Lookup(genreKey); !ok && rctx.Entry != nil && len(rctx.Entry.Tags) > 0 {
		tags = append(tags, tagger.Tag{Key: genreKey, Value: strings.Join(rctx.Entry.Tags, ", ")})
	}
	return tags, nil
}

func (c *Catcher) tag(eff config.Effective, rctx replacer.Context, path string) error {
	if c.tagger == nil {
		return nil
	}
	tags, err := Tags(eff, rctx)
	if err != nil {
		return err
	}
	if len(tags) == 0 {
		return nil
	}
	if !c.tagger.Supports(path) {
		log.Printf("Not tagging %s, unsupported file type.", filepath.Base(path))
		return nil
	}
	return c.tagger.WriteTags(path, tags)
}

func (c *Catcher) lock(feed string) (func(), error) {
	if err := os.MkdirAll(c.settings.DataDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create data dir %s", c.settings.DataDir)
	}
	lockPath := filepath.Join(c.settings.DataDir, feed+".lock")
	fl := flock.New(lockPath)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrapf(err, "acquire lock %s", lockPath)
	}
	if !ok {
		return nil, errors.Wrapf(ErrLocked, "feed %q", feed)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			log.Printf("Failed to release lock %s: %v", lockPath, err)
		}
	}, nil
}

// uniquePath returns path, or path with a " (N)" suffix before the
// extension when a file of that name already exists.
func uniquePath(path string) string {
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			log.Printf("File %s already exists, saving as %s", filepath.Base(path), filepath.Base(candidate))
			return candidate
		}
	}
}

var filenameReplacer = strings.NewReplacer("/", "_", "\\", "_", "\x00", "_")

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(filenameReplacer.Replace(name))
	if name == "." || name == ".." {
		return "_"
	}
	return name
}
