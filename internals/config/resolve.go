package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// MissingMappingKeyError reports a tag key defined neither globally nor for
// the feed.
type MissingMappingKeyError struct {
	Feed string
	Key  string
}

func (e *MissingMappingKeyError) Error() string {
	return fmt.Sprintf("feed %q: tag mapping key %q is not defined globally or per feed", e.Feed, e.Key)
}

// TagMapping is an ordered list of tag key/value templates.
type TagMapping []TagPair

// Lookup returns the value template for key.
func (m TagMapping) Lookup(key string) (string, bool) {
	for _, p := range m {
		if p.Replace == key {
			return p.With, true
		}
	}
	return "", false
}

// Keys returns the mapping keys in order.
func (m TagMapping) Keys() []string {
	keys := make([]string, 0, len(m))
	for _, p := range m {
		keys = append(keys, p.Replace)
	}
	return keys
}

// Merge returns m with override applied on top. Keys present in both keep
// their position in m and take the value from override; keys only in
// override are appended in their own order.
func (m TagMapping) Merge(override TagMapping) TagMapping {
	out := make(TagMapping, 0, len(m)+len(override))
	index := make(map[string]int, len(m)+len(override))
	for _, p := range append(append(TagMapping{}, m...), override...) {
		if i, ok := index[p.Replace]; ok {
			out[i].With = p.With
			continue
		}
		index[p.Replace] = len(out)
		out = append(out, p)
	}
	return out
}

// Effective is the result of resolving a FeedConfig against the global
// Settings. It is computed once per feed and pass and never modified.
type Effective struct {
	Name        string
	URL         string
	StrictHTTPS bool
	Enabled     bool
	Subdir      string
	Destination string
	Cutoff      *time.Time
	Filename    string
	Tags        TagMapping
}

// Tag returns the value template for key.
func (e Effective) Tag(key string) (string, error) {
	if v, ok := e.Tags.Lookup(key); ok {
		return v, nil
	}
	return "", &MissingMappingKeyError{Feed: e.Name, Key: key}
}

// Resolve merges the global settings with one feed's overrides. Per-feed
// values win; it never fails.
func Resolve(settings Settings, feed FeedConfig) Effective {
	subdir := feed.Name
	if feed.DownloadSubdir != "" {
		subdir = feed.DownloadSubdir
	}
	filename := settings.Filename
	if feed.Filename != "" {
		filename = feed.Filename
	}
	var cutoff *time.Time
	if c := feed.Cutoff(); c != nil {
		t := *c
		cutoff = &t
	}
	return Effective{
		Name:        feed.Name,
		URL:         feed.URL,
		StrictHTTPS: feed.IsStrictHTTPS(),
		Enabled:     feed.IsEnabled(),
		Subdir:      subdir,
		Destination: filepath.Join(settings.DownloadDir, subdir),
		Cutoff:      cutoff,
		Filename:    filename,
		Tags:        settings.Tags.Merge(feed.Tags),
	}
}
