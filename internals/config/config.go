// Package config loads the podcatcher configuration file and resolves the
// per-feed effective settings.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	LedgerFile     = "file"
	LedgerDatabase = "database"

	DefaultTimeout = 10 * time.Minute
)

// ConfigError reports a missing, unreadable or invalid configuration.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return "config error: " + e.Err.Error()
	}
	return "config error in " + e.Path + ": " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// TagPair is one replace/with entry of a tag mapping.
type TagPair struct {
	Replace string `json:"replace" yaml:"replace" validate:"required"`
	With    string `json:"with" yaml:"with"`
}

// LedgerSettings selects where download ledgers are kept.
type LedgerSettings struct {
	Backend string `json:"backend" yaml:"backend" validate:"omitempty,oneof=file database"`
	DbType  string `json:"db_type" yaml:"db_type" validate:"omitempty,oneof=sqlite mysql postgres"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

// TelegramSettings enables a message per downloaded episode.
type TelegramSettings struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Channel int64  `json:"channel" yaml:"channel" validate:"required_if=Enabled true"`
	URL     string `json:"url" yaml:"url" validate:"omitempty,url"`
}

// Settings are the global settings.
type Settings struct {
	DownloadDir string           `json:"download_dir" yaml:"download_dir" validate:"required"`
	DataDir     string           `json:"data_dir" yaml:"data_dir" validate:"required"`
	Filename    string           `json:"filename" yaml:"filename" validate:"required"`
	Tags        TagMapping       `json:"tags" yaml:"tags" validate:"dive"`
	Ledger      LedgerSettings   `json:"ledger" yaml:"ledger"`
	Telegram    TelegramSettings `json:"telegram" yaml:"telegram"`
	Timeout     string           `json:"timeout" yaml:"timeout"`
	UserAgent   string           `json:"user_agent" yaml:"user_agent"`

	timeout time.Duration
}

// HTTPTimeout is the parsed timeout, DefaultTimeout when unset.
func (s Settings) HTTPTimeout() time.Duration {
	if s.timeout <= 0 {
		return DefaultTimeout
	}
	return s.timeout
}

// FeedConfig is the configuration of one subscribed feed.
type FeedConfig struct {
	Name           string     `json:"name" yaml:"name" validate:"required,excludesall=/\\"`
	URL            string     `json:"url" yaml:"url" validate:"required,url"`
	StrictHTTPS    *bool      `json:"strict_https" yaml:"strict_https"`
	Enabled        *bool      `json:"enabled" yaml:"enabled"`
	DownloadSubdir string     `json:"download_subdir" yaml:"download_subdir"`
	SkipOlderThan  string     `json:"skip_older_than" yaml:"skip_older_than"`
	Filename       string     `json:"filename" yaml:"filename"`
	Tags           TagMapping `json:"tags" yaml:"tags" validate:"dive"`

	cutoff *time.Time
}

// IsStrictHTTPS defaults to true.
func (f FeedConfig) IsStrictHTTPS() bool {
	return f.StrictHTTPS == nil || *f.StrictHTTPS
}

// IsEnabled defaults to true.
func (f FeedConfig) IsEnabled() bool {
	return f.Enabled == nil || *f.Enabled
}

// Cutoff is the parsed skip_older_than value, nil when unset.
func (f FeedConfig) Cutoff() *time.Time {
	return f.cutoff
}

// WithCutoff returns a copy of f with the age cutoff set to t.
func (f FeedConfig) WithCutoff(t time.Time) FeedConfig {
	t = t.UTC()
	f.cutoff = &t
	f.SkipOlderThan = t.Format(time.RFC3339)
	return f
}

// Config is the whole configuration file.
type Config struct {
	Settings Settings     `json:"settings" yaml:"settings" validate:"required"`
	Feeds    []FeedConfig `json:"feeds" yaml:"feeds" validate:"dive"`
}

// Feed returns the feed configuration with the given name.
func (c *Config) Feed(name string) (FeedConfig, bool) {
	for _, f := range c.Feeds {
		if f.Name == name {
			return f, true
		}
	}
	return FeedConfig{}, false
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads, decodes and validates the configuration at path. JSON is
// expected unless the file ends in .yaml or .yml.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	cfg, err := Decode(data, filepath.Ext(path))
	if err != nil {
		var cerr *ConfigError
		if errors.As(err, &cerr) {
			cerr.Path = path
		}
		return nil, err
	}
	return cfg, nil
}

// Decode parses data in the format named by ext and validates the result.
func Decode(data []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, &ConfigError{Err: errors.Wrap(err, "YAML parser error")}
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, &ConfigError{Err: errors.Wrap(err, "JSON parser error")}
		}
	}
	if err := cfg.prepare(); err != nil {
		return nil, &ConfigError{Err: err}
	}
	return &cfg, nil
}

func (c *Config) prepare() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "validation error")
	}

	if c.Settings.Ledger.Backend == "" {
		c.Settings.Ledger.Backend = LedgerFile
	}
	if c.Settings.Ledger.Backend == LedgerDatabase && c.Settings.Ledger.DbType == "" {
		c.Settings.Ledger.DbType = "sqlite"
	}
	if c.Settings.Timeout != "" {
		d, err := time.ParseDuration(c.Settings.Timeout)
		if err != nil {
			return errors.Wrapf(err, "settings.timeout %q", c.Settings.Timeout)
		}
		c.Settings.timeout = d
	}

	seen := make(map[string]bool, len(c.Feeds))
	for i := range c.Feeds {
		f := &c.Feeds[i]
		if seen[f.Name] {
			return errors.Errorf("duplicate feed name %q", f.Name)
		}
		seen[f.Name] = true

		if f.DownloadSubdir != "" && !filepath.IsLocal(f.DownloadSubdir) {
			return errors.Errorf("feed %q download_subdir %q must stay inside download_dir", f.Name, f.DownloadSubdir)
		}

		if f.SkipOlderThan != "" {
			t, err := ParseTimestamp(f.SkipOlderThan)
			if err != nil {
				return errors.Wrapf(err, "feed %q skip_older_than", f.Name)
			}
			f.cutoff = &t
		}
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts ISO-8601 dates and date-times. Values without a
// zone are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Errorf("invalid ISO-8601 timestamp %q", s)
}
