// Package replacer resolves %placeholder% tokens in file name and tag
// templates against a feed and one of its entries.
package replacer

import (
	"net/url"
	"path"
	"strings"

	"github.com/pkg/errors"
	"github.com/tutuna/podcatcher/internals/models"
)

// Token encloses every placeholder key.
const Token = "%"

const (
	dateLayout     = "20060102"
	datetimeLayout = "20060102-150405"
)

// ErrIncompleteContext is returned when Render is called without a name,
// feed and entry.
var ErrIncompleteContext = errors.New("replacer context is incomplete")

// Context is everything a placeholder may refer to.
type Context struct {
	Name  string
	Feed  *models.Feed
	Entry *models.Entry
}

func (c Context) complete() bool {
	return c.Name != "" && c.Feed != nil && c.Entry != nil
}

// Placeholder is one supported token and its projection.
type Placeholder struct {
	Key     string
	Resolve func(Context) string
}

func key(name string) string { return Token + name + Token }

// Placeholders is the fixed set of supported tokens.
var Placeholders = []Placeholder{
	{key("config_name"), func(c Context) string { return c.Name }},

	{key("feed_title"), func(c Context) string { return c.Feed.Title }},
	{key("feed_subtitle"), func(c Context) string { return c.Feed.Subtitle }},
	{key("feed_description"), func(c Context) string { return c.Feed.Description }},
	{key("feed_link"), func(c Context) string { return c.Feed.Link }},
	{key("feed_date"), func(c Context) string { return c.Feed.Updated.UTC().Format(dateLayout) }},
	{key("feed_datetime"), func(c Context) string { return c.Feed.Updated.UTC().Format(datetimeLayout) }},

	{key("episode_date"), func(c Context) string { return c.Entry.Published.UTC().Format(dateLayout) }},
	{key("episode_datetime"), func(c Context) string { return c.Entry.Published.UTC().Format(datetimeLayout) }},
	{key("episode_url_basename"), func(c Context) string {
		base, ext := urlBase(c.Entry.Enclosure)
		return strings.TrimSuffix(base, ext)
	}},
	{key("episode_url_extension"), func(c Context) string {
		_, ext := urlBase(c.Entry.Enclosure)
		return ext
	}},
	{key("episode_title"), func(c Context) string { return c.Entry.Title }},
	{key("episode_author"), func(c Context) string { return c.Entry.Author }},
	{key("episode_summary"), func(c Context) string { return c.Entry.Summary }},
	{key("episode_link"), func(c Context) string { return c.Entry.Link }},
}

// urlBase returns the last path element of raw and its extension. Query
// strings and fragments are ignored.
func urlBase(raw string) (base, ext string) {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "", ""
	}
	base = path.Base(p)
	if base == "." || base == "/" {
		return "", ""
	}
	ext = path.Ext(base)
	if ext == base {
		// ".hidden" has no extension
		ext = ""
	}
	return base, ext
}

// Render replaces every known placeholder in template. Unknown tokens are
// left as they are and replaced values are never scanned again.
func Render(template string, ctx Context) (string, error) {
	if !ctx.complete() {
		return "", errors.Wrapf(ErrIncompleteContext, "name %q, feed set: %t, entry set: %t", ctx.Name, ctx.Feed != nil, ctx.Entry != nil)
	}
	if !strings.Contains(template, Token) {
		return template, nil
	}
	pairs := make([]string, 0, 2*len(Placeholders))
	for _, p := range Placeholders {
		pairs = append(pairs, p.Key, p.Resolve(ctx))
	}
	return strings.NewReplacer(pairs...).Replace(template), nil
}
