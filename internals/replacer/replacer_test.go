package replacer

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutuna/podcatcher/internals/models"
)

func testContext() Context {
	feed := models.NewFeed("Radio X", "Talk", "All shows", "https://radio.example.com/",
		time.Date(2024, 1, 2, 10, 11, 12, 0, time.UTC), nil)
	entry := &models.Entry{
		Author:    "The Host",
		Enclosure: "https://cdn.example.com/shows/ep-01.final.mp3?token=abc",
		Link:      "https://radio.example.com/ep1",
		Published: time.Date(2024, 1, 1, 8, 9, 10, 0, time.UTC),
		Summary:   "First episode",
		Title:     "Episode 1",
	}
	return Context{Name: "radiox", Feed: feed, Entry: entry}
}

func TestRender_Placeholders(t *testing.T) {
	ctx := testContext()
	tests := map[string]string{
		"%config_name%":           "radiox",
		"%feed_title%":            "Radio X",
		"%feed_subtitle%":         "Talk",
		"%feed_description%":      "All shows",
		"%feed_link%":             "https://radio.example.com/",
		"%feed_date%":             "20240102",
		"%feed_datetime%":         "20240102-101112",
		"%episode_date%":          "20240101",
		"%episode_datetime%":      "20240101-080910",
		"%episode_url_basename%":  "ep-01.final",
		"%episode_url_extension%": ".mp3",
		"%episode_title%":         "Episode 1",
		"%episode_author%":        "The Host",
		"%episode_summary%":       "First episode",
		"%episode_link%":          "https://radio.example.com/ep1",
	}
	require.Len(t, Placeholders, len(tests), "every placeholder is covered")
	for template, want := range tests {
		got, err := Render(template, ctx)
		require.NoError(t, err, template)
		assert.Equal(t, want, got, template)
	}
}

func TestRender_Template(t *testing.T) {
	got, err := Render("%episode_date% - %feed_title% - %episode_title%%episode_url_extension%", testContext())
	require.NoError(t, err)
	assert.Equal(t, "20240101 - Radio X - Episode 1.mp3", got)
}

func TestRender_EveryOccurrence(t *testing.T) {
	got, err := Render("%config_name%/%config_name%", testContext())
	require.NoError(t, err)
	assert.Equal(t, "radiox/radiox", got)
}

func TestRender_UnknownTokensUnchanged(t *testing.T) {
	for _, in := range []string{"", "plain", "%unknown%", "%episode_title", "100% %not_a_key% %%"} {
		got, err := Render(in, testContext())
		require.NoError(t, err)
		assert.Equal(t, in, got)
	}
}

func TestRender_ValuesAreNotRescanned(t *testing.T) {
	ctx := testContext()
	ctx.Entry.Title = "%feed_title%"

	got, err := Render("%episode_title%", ctx)
	require.NoError(t, err)
	assert.Equal(t, "%feed_title%", got)
}

func TestRender_IncompleteContext(t *testing.T) {
	full := testContext()
	for name, ctx := range map[string]Context{
		"no name":  {Feed: full.Feed, Entry: full.Entry},
		"no feed":  {Name: full.Name, Entry: full.Entry},
		"no entry": {Name: full.Name, Feed: full.Feed},
		"empty":    {},
	} {
		got, err := Render("plain", ctx)
		assert.True(t, errors.Is(err, ErrIncompleteContext), name)
		assert.Empty(t, got, name)
	}
}

func TestURLBase(t *testing.T) {
	tests := []struct {
		in, base, ext string
	}{
		{"https://cdn.example.com/a/b/episode.mp3", "episode.mp3", ".mp3"},
		{"https://cdn.example.com/a/archive.tar.gz", "archive.tar.gz", ".gz"},
		{"https://cdn.example.com/a/noext", "noext", ""},
		{"https://cdn.example.com/", "", ""},
		{"https://cdn.example.com", "", ""},
		{"https://cdn.example.com/.hidden", ".hidden", ""},
	}
	for _, tt := range tests {
		base, ext := urlBase(tt.in)
		assert.Equal(t, tt.base, base, tt.in)
		assert.Equal(t, tt.ext, ext, tt.in)
	}
}
