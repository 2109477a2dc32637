package feeds

import (
	"log"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/pkg/errors"
	"github.com/tutuna/podcatcher/internals/models"
)

// now is replaced in tests.
var now = time.Now

// ParseError reports a document that could not be read as a feed at all.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "feed parse error: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// FeedParserInterface defines the interface for a feed parser.
// This allows for swapping the gofeed.Parser in tests.
type FeedParserInterface interface {
	ParseString(feed string) (*gofeed.Feed, error)
}

// Parser turns raw feed documents into models.Feed values.
type Parser struct {
	parser FeedParserInterface
}

// NewParser creates a Parser backed by gofeed.
func NewParser() *Parser {
	return &Parser{parser: gofeed.NewParser()}
}

// NewParserWith creates a Parser backed by fp.
func NewParserWith(fp FeedParserInterface) *Parser {
	return &Parser{parser: fp}
}

// Parse reads raw RSS/Atom text. Parsing is best effort per entry: entries
// without an enclosure are dropped and logged.
func Parse(raw string) (*models.Feed, error) {
	return NewParser().Parse(raw)
}

// Parse reads raw RSS/Atom text, see the package level Parse.
func (p *Parser) Parse(raw string) (*models.Feed, error) {
	parsed, err := p.parser.ParseString(raw)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	if parsed == nil {
		return nil, &ParseError{Err: errors.New("empty feed document")}
	}
	return convert(parsed), nil
}

func convert(parsed *gofeed.Feed) *models.Feed {
	updated := feedUpdated(parsed)

	entries := make([]models.Entry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		if len(item.Enclosures) < 1 || item.Enclosures[0] == nil || item.Enclosures[0].URL == "" {
			log.Printf("Feed '%s' episode '%s' has no enclosures -> skipping episode.", parsed.Title, item.Title)
			continue
		}
		if len(item.Enclosures) > 1 {
			log.Printf("Feed '%s' episode '%s' offers %d enclosures, using the first.", parsed.Title, item.Title, len(item.Enclosures))
		}
		entries = append(entries, models.Entry{
			Author:    itemAuthor(item),
			Enclosure: item.Enclosures[0].URL,
			Link:      item.Link,
			Published: itemPublished(parsed.Title, item, updated),
			Summary:   itemSummary(item),
			Title:     item.Title,
			// category scheme and label are not kept
			Tags: append([]string(nil), item.Categories...),
		})
	}

	subtitle := ""
	if parsed.ITunesExt != nil {
		subtitle = parsed.ITunesExt.Subtitle
	}

	return models.NewFeed(parsed.Title, subtitle, parsed.Description, parsed.Link, updated, entries)
}

func feedUpdated(parsed *gofeed.Feed) time.Time {
	switch {
	case parsed.UpdatedParsed != nil:
		return parsed.UpdatedParsed.UTC()
	case parsed.PublishedParsed != nil:
		return parsed.PublishedParsed.UTC()
	default:
		// Feeds are often inconsistent about this, fall back to now.
		return now().UTC()
	}
}

func itemAuthor(item *gofeed.Item) string {
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	for _, a := range item.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	if item.ITunesExt != nil && item.ITunesExt.Author != "" {
		return item.ITunesExt.Author
	}
	return item.Title
}

func itemPublished(feedTitle string, item *gofeed.Item, fallback time.Time) time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC()
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.UTC()
	}
	log.Printf("Feed '%s' episode '%s' has no publication date, using the feed date.", feedTitle, item.Title)
	return fallback
}

func itemSummary(item *gofeed.Item) string {
	if item.Description != "" {
		return item.Description
	}
	if item.ITunesExt != nil && item.ITunesExt.Summary != "" {
		return item.ITunesExt.Summary
	}
	return item.Content
}
