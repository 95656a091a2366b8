// Package opml imports and exports subscription lists as OPML 2.0.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/bryan-buckman/skimmer/internal/model"
)

// OPML represents the root of an OPML document.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains OPML metadata.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outlines.
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline is a folder when it has children and a feed when it has an xmlUrl.
type Outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	HTMLURL  string    `xml:"htmlUrl,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// FeedEntry is a feed outline flattened with its folder.
// Nested folders are joined with "/".
type FeedEntry struct {
	Folder  string
	Title   string
	URL     string
	SiteURL string
}

// Parse reads an OPML document and returns its feeds in document order.
func Parse(r io.Reader) ([]FeedEntry, error) {
	var doc OPML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode opml: %w", err)
	}

	var entries []FeedEntry
	var walk func(outlines []Outline, path []string)
	walk = func(outlines []Outline, path []string) {
		for _, o := range outlines {
			switch {
			case o.XMLURL != "":
				title := o.Title
				if title == "" {
					title = o.Text
				}
				entries = append(entries, FeedEntry{
					Folder:  strings.Join(path, "/"),
					Title:   title,
					URL:     strings.TrimSpace(o.XMLURL),
					SiteURL: o.HTMLURL,
				})
			case len(o.Outlines) > 0:
				name := o.Text
				if name == "" {
					name = o.Title
				}
				walk(o.Outlines, append(path[:len(path):len(path)], name))
			}
		}
	}
	walk(doc.Body.Outlines, nil)
	return entries, nil
}

// Export renders subscriptions as OPML. Subscriptions in a folder are nested
// under it, folders follow the order of folders, the rest stay at the top level.
func Export(title string, subs []model.Subscription, folders []model.Folder, now time.Time) ([]byte, error) {
	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       title,
			DateCreated: now.Format(time.RFC1123Z),
		},
	}

	byFolder := lo.GroupBy(subs, func(s model.Subscription) int64 {
		if s.FolderID == nil {
			return 0
		}
		return *s.FolderID
	})

	for _, s := range byFolder[0] {
		doc.Body.Outlines = append(doc.Body.Outlines, feedOutline(s))
	}
	for _, f := range folders {
		members := byFolder[f.ID]
		if len(members) == 0 {
			continue
		}
		doc.Body.Outlines = append(doc.Body.Outlines, Outline{
			Text:     f.Title,
			Title:    f.Title,
			Outlines: lo.Map(members, func(s model.Subscription, _ int) Outline { return feedOutline(s) }),
		})
	}

	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), output...), nil
}

func feedOutline(s model.Subscription) Outline {
	return Outline{
		Text:    s.Title,
		Title:   s.Title,
		Type:    "rss",
		XMLURL:  s.URL,
		HTMLURL: s.SiteURL,
	}
}
