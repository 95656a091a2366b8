package opml_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-buckman/skimmer/internal/model"
	"github.com/bryan-buckman/skimmer/internal/opml"
)

const sample = `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <head><title>My feeds</title></head>
  <body>
    <outline text="Loose" type="rss" xmlUrl="https://loose.example/feed"/>
    <outline text="Tech">
      <outline text="Go Blog" title="The Go Blog" type="rss" xmlUrl=" https://go.dev/blog/feed.atom " htmlUrl="https://go.dev/blog"/>
      <outline text="Google">
        <outline text="Research" type="rss" xmlUrl="https://research.example/feed"/>
      </outline>
      <outline text="Empty folder"/>
    </outline>
  </body>
</opml>`

func TestParse(t *testing.T) {
	entries, err := opml.Parse(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, []opml.FeedEntry{
		{Title: "Loose", URL: "https://loose.example/feed"},
		{Folder: "Tech", Title: "The Go Blog", URL: "https://go.dev/blog/feed.atom", SiteURL: "https://go.dev/blog"},
		{Folder: "Tech/Google", Title: "Research", URL: "https://research.example/feed"},
	}, entries)
}

func TestParseInvalid(t *testing.T) {
	_, err := opml.Parse(strings.NewReader("<opml><body>"))
	assert.Error(t, err)
}

func TestExportRoundTrip(t *testing.T) {
	tech := int64(7)
	folders := []model.Folder{{ID: 7, Title: "Tech"}, {ID: 8, Title: "Unused"}}
	subs := []model.Subscription{
		{Title: "Go Blog", URL: "https://go.dev/blog/feed.atom", SiteURL: "https://go.dev/blog", FolderID: &tech},
		{Title: "Loose", URL: "https://loose.example/feed", SiteURL: "https://loose.example"},
	}
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	data, err := opml.Export("skimmer", subs, folders, now)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("<?xml")))
	assert.Contains(t, string(data), "Tue, 02 Jan 2024 03:04:05 +0000")
	assert.NotContains(t, string(data), "Unused")

	entries, err := opml.Parse(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []opml.FeedEntry{
		{Title: "Loose", URL: "https://loose.example/feed", SiteURL: "https://loose.example"},
		{Folder: "Tech", Title: "Go Blog", URL: "https://go.dev/blog/feed.atom", SiteURL: "https://go.dev/blog"},
	}, entries)
}
