package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutuna/podcatcher/internals/models"
)

func entry(title, url string, published time.Time) models.Entry {
	return models.Entry{Title: title, Enclosure: url, Published: published}
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 8, 0, 0, 0, time.UTC)
}

func TestOpen_MissingFileIsEmpty(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)

	l, err := Open(store, "radiox")
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())
	assert.False(t, l.IsDownloaded("https://cdn.example.com/ep1.mp3"))
	_, ok := l.Latest()
	assert.False(t, ok)
}

func TestOpen_MalformedFile(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.Path("radiox"), []byte("{not json"), 0o644))

	_, err = Open(store, "radiox")
	var serr *StateCorruptionError
	require.True(t, errors.As(err, &serr), "got %v", err)
	assert.Equal(t, "radiox", serr.Feed)
}

func TestOpen_BadTimestamp(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.Path("radiox"),
		[]byte(`[{"title": "a", "url": "u", "published": "last tuesday"}]`), 0o644))

	_, err = Open(store, "radiox")
	var serr *StateCorruptionError
	assert.True(t, errors.As(err, &serr))
}

func TestOpen_ReadsOlderLedgerFormat(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	legacy := `[{"title": "Episode 1", "url": "https://cdn.example.com/ep1.mp3", "published": "2024-01-01 08:00:00+00:00"},
{"title": "Episode 2", "url": "https://cdn.example.com/ep2.mp3", "published": "2024-01-02 08:00:00.250000+00:00"}]`
	require.NoError(t, os.WriteFile(store.Path("radiox"), []byte(legacy), 0o644))

	l, err := Open(store, "radiox")
	require.NoError(t, err)
	assert.True(t, l.IsDownloaded("https://cdn.example.com/ep1.mp3"))
	latest, ok := l.Latest()
	require.True(t, ok)
	assert.Equal(t, "Episode 2", latest.Title)
}

func TestRecordPersistReload(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	l, err := Open(store, "radiox")
	require.NoError(t, err)
	l.Record(entry("Episode 1", "https://cdn.example.com/ep1.mp3", day(1)))
	l.Record(entry("Episode 2", "https://cdn.example.com/ep2.mp3", day(2)))
	require.NoError(t, l.Persist())

	again, err := Open(store, "radiox")
	require.NoError(t, err)
	assert.Equal(t, []Record{
		{Title: "Episode 1", URL: "https://cdn.example.com/ep1.mp3", Published: "2024-01-01T08:00:00Z"},
		{Title: "Episode 2", URL: "https://cdn.example.com/ep2.mp3", Published: "2024-01-02T08:00:00Z"},
	}, again.Records())

	leftovers, err := filepath.Glob(filepath.Join(store.Dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestRecord_Idempotent(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	l, err := Open(store, "radiox")
	require.NoError(t, err)

	e := entry("Episode 1", "https://cdn.example.com/ep1.mp3", day(1))
	l.Record(e)
	l.Record(e)
	assert.Equal(t, 1, l.Len())
}

func TestPersist_KeepsPreviousFileOnFailure(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	l, err := Open(store, "radiox")
	require.NoError(t, err)
	l.Record(entry("Episode 1", "https://cdn.example.com/ep1.mp3", day(1)))
	require.NoError(t, l.Persist())
	before, err := os.ReadFile(store.Path("radiox"))
	require.NoError(t, err)

	// A store whose directory vanished cannot create its temp file.
	broken := &FileStore{Dir: filepath.Join(dir, "gone")}
	l2, err := Open(store, "radiox")
	require.NoError(t, err)
	l2.store = broken
	l2.Record(entry("Episode 2", "https://cdn.example.com/ep2.mp3", day(2)))
	assert.Error(t, l2.Persist())

	after, err := os.ReadFile(store.Path("radiox"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestLatest(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	l, err := Open(store, "radiox")
	require.NoError(t, err)

	l.Record(entry("Episode 3", "u3", day(3)))
	l.Record(entry("Episode 1", "u1", day(1)))
	l.Record(entry("Episode 2", "u2", day(2)))
	latest, ok := l.Latest()
	require.True(t, ok)
	assert.Equal(t, "Episode 3", latest.Title)

	// ties resolve to the record added last
	l.Record(entry("Episode 3b", "u3b", day(3)))
	latest, ok = l.Latest()
	require.True(t, ok)
	assert.Equal(t, "Episode 3b", latest.Title)
}
