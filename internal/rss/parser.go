package rss

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/samber/lo"
)

// ErrParse is wrapped by every Parse failure.
var ErrParse = errors.New("cannot parse feed")

// Document is a parsed feed: channel metadata plus its items in feed order.
type Document struct {
	Title    string
	Link     string
	ImageURL string
	Items    []Item
}

// ContentPart is one typed content body of an item.
type ContentPart struct {
	Type  string
	Value string
}

// Item is a single feed item.
type Item struct {
	Title       string
	Link        string
	Author      string
	Published   string // raw date as found in the feed
	Updated     string
	PublishedAt *time.Time
	UpdatedAt   *time.Time
	Description string
	Summary     string
	Content     []ContentPart
	Tags        []string
}

// HTMLContent returns the HTML-typed content part, if any.
func (it Item) HTMLContent() (string, bool) {
	for _, c := range it.Content {
		switch strings.ToLower(c.Type) {
		case "text/html", "html", "xhtml", "application/xhtml+xml":
			return c.Value, true
		}
	}
	return "", false
}

// Parse decodes RSS, Atom or RDF data. It performs no I/O.
func Parse(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrParse)
	}
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	doc := &Document{
		Title: strings.TrimSpace(parsed.Title),
		Link:  strings.TrimSpace(parsed.Link),
	}
	if doc.Link == "" && len(parsed.Links) > 0 {
		doc.Link = strings.TrimSpace(parsed.Links[0])
	}
	if parsed.Image != nil {
		doc.ImageURL = strings.TrimSpace(parsed.Image.URL)
	}

	doc.Items = make([]Item, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		if it == nil {
			continue
		}
		doc.Items = append(doc.Items, convertItem(it))
	}
	return doc, nil
}

func convertItem(it *gofeed.Item) Item {
	item := Item{
		Title:       strings.TrimSpace(it.Title),
		Link:        strings.TrimSpace(it.Link),
		Published:   it.Published,
		Updated:     it.Updated,
		PublishedAt: it.PublishedParsed,
		UpdatedAt:   it.UpdatedParsed,
		// gofeed folds <description> and Atom <summary> into one field.
		Description: it.Description,
		Summary:     it.Description,
	}
	if item.Link == "" && len(it.Links) > 0 {
		item.Link = strings.TrimSpace(it.Links[0])
	}
	if it.Author != nil {
		item.Author = strings.TrimSpace(it.Author.Name)
	} else if len(it.Authors) > 0 && it.Authors[0] != nil {
		item.Author = strings.TrimSpace(it.Authors[0].Name)
	}
	if item.PublishedAt == nil {
		item.PublishedAt = parseDatePtr(it.Published)
	}
	if item.UpdatedAt == nil {
		item.UpdatedAt = parseDatePtr(it.Updated)
	}
	if it.Content != "" {
		item.Content = []ContentPart{{Type: "text/html", Value: it.Content}}
	}
	item.Tags = lo.Filter(it.Categories, func(c string, _ int) bool {
		return strings.TrimSpace(c) != ""
	})
	return item
}

func parseDatePtr(s string) *time.Time {
	t, ok := ParseDate(s)
	if !ok {
		return nil
	}
	return &t
}
