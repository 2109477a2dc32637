package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "settings": {
    "download_dir": "/srv/podcasts",
    "data_dir": "/var/lib/podcatcher",
    "filename": "%episode_date% - %episode_title%%episode_url_extension%",
    "tags": [
      {"replace": "artist", "with": "Unknown"},
      {"replace": "album", "with": "%feed_title%"}
    ],
    "timeout": "90s"
  },
  "feeds": [
    {
      "name": "radiox",
      "url": "https://radio.example.com/feed.xml",
      "strict_https": false,
      "skip_older_than": "2024-01-01",
      "tags": [
        {"replace": "artist", "with": "Radio X"},
        {"replace": "comment", "with": "%episode_link%"}
      ]
    },
    {
      "name": "quiet",
      "url": "https://quiet.example.com/rss",
      "enabled": false,
      "download_subdir": "misc/quiet",
      "filename": "%episode_url_basename%%episode_url_extension%"
    }
  ]
}`

const sampleYAML = `
settings:
  download_dir: /srv/podcasts
  data_dir: /var/lib/podcatcher
  filename: "%episode_date% - %episode_title%%episode_url_extension%"
  tags:
    - replace: artist
      with: Unknown
    - replace: album
      with: "%feed_title%"
  timeout: 90s
feeds:
  - name: radiox
    url: https://radio.example.com/feed.xml
    strict_https: false
    skip_older_than: "2024-01-01"
    tags:
      - replace: artist
        with: Radio X
      - replace: comment
        with: "%episode_link%"
  - name: quiet
    url: https://quiet.example.com/rss
    enabled: false
    download_subdir: misc/quiet
    filename: "%episode_url_basename%%episode_url_extension%"
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_JSON(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.json", sampleJSON))
	require.NoError(t, err)

	assert.Equal(t, "/srv/podcasts", cfg.Settings.DownloadDir)
	assert.Equal(t, LedgerFile, cfg.Settings.Ledger.Backend)
	assert.Equal(t, 90*time.Second, cfg.Settings.HTTPTimeout())
	require.Len(t, cfg.Feeds, 2)

	radio := cfg.Feeds[0]
	assert.False(t, radio.IsStrictHTTPS())
	assert.True(t, radio.IsEnabled())
	require.NotNil(t, radio.Cutoff())
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *radio.Cutoff())

	quiet := cfg.Feeds[1]
	assert.True(t, quiet.IsStrictHTTPS())
	assert.False(t, quiet.IsEnabled())
	assert.Nil(t, quiet.Cutoff())
}

func TestLoad_YAMLMatchesJSON(t *testing.T) {
	fromJSON, err := Load(writeConfig(t, "config.json", sampleJSON))
	require.NoError(t, err)
	fromYAML, err := Load(writeConfig(t, "config.yaml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, fromJSON, fromYAML)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"malformed json", "c.json", `{"settings": `},
		{"malformed yaml", "c.yaml", "settings: [\n"},
		{"missing settings", "c.json", `{"feeds": []}`},
		{"missing data dir", "c.json", `{"settings": {"download_dir": "d", "filename": "f"}}`},
		{"bad feed url", "c.json", `{"settings": {"download_dir": "d", "data_dir": "s", "filename": "f"}, "feeds": [{"name": "a", "url": "not a url"}]}`},
		{"feed name with slash", "c.json", `{"settings": {"download_dir": "d", "data_dir": "s", "filename": "f"}, "feeds": [{"name": "a/b", "url": "https://x.example.com"}]}`},
		{"download subdir escapes", "c.json", `{"settings": {"download_dir": "d", "data_dir": "s", "filename": "f"}, "feeds": [{"name": "a", "url": "https://x.example.com", "download_subdir": "../../x"}]}`},
		{"absolute download subdir", "c.json", `{"settings": {"download_dir": "d", "data_dir": "s", "filename": "f"}, "feeds": [{"name": "a", "url": "https://x.example.com", "download_subdir": "/tmp/x"}]}`},
		{"duplicate feed", "c.json", `{"settings": {"download_dir": "d", "data_dir": "s", "filename": "f"}, "feeds": [{"name": "a", "url": "https://x.example.com"}, {"name": "a", "url": "https://y.example.com"}]}`},
		{"bad cutoff", "c.json", `{"settings": {"download_dir": "d", "data_dir": "s", "filename": "f"}, "feeds": [{"name": "a", "url": "https://x.example.com", "skip_older_than": "yesterday"}]}`},
		{"bad backend", "c.json", `{"settings": {"download_dir": "d", "data_dir": "s", "filename": "f", "ledger": {"backend": "redis"}}}`},
		{"bad timeout", "c.json", `{"settings": {"download_dir": "d", "data_dir": "s", "filename": "f", "timeout": "soon"}}`},
		{"telegram without channel", "c.json", `{"settings": {"download_dir": "d", "data_dir": "s", "filename": "f", "telegram": {"enabled": true}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.content)
			_, err := Load(path)
			require.Error(t, err)

			var cerr *ConfigError
			require.True(t, errors.As(err, &cerr), "got %T", err)
			assert.Equal(t, path, cerr.Path)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestParseTimestamp(t *testing.T) {
	for _, s := range []string{"2024-02-03", "2024-02-03T00:00:00", "2024-02-03T00:00:00Z", "2024-02-03T01:00:00+01:00", "2024-02-03 00:00:00+00:00"} {
		got, err := ParseTimestamp(s)
		require.NoError(t, err, s)
		assert.Equal(t, time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC), got, s)
	}
	_, err := ParseTimestamp("03.02.2024")
	assert.Error(t, err)
}

func TestConfig_Feed(t *testing.T) {
	cfg, err := Decode([]byte(sampleJSON), ".json")
	require.NoError(t, err)

	f, ok := cfg.Feed("quiet")
	require.True(t, ok)
	assert.Equal(t, "misc/quiet", f.DownloadSubdir)

	_, ok = cfg.Feed("missing")
	assert.False(t, ok)
}
