package subscription_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-buckman/skimmer/internal/database"
	"github.com/bryan-buckman/skimmer/internal/fetch"
	"github.com/bryan-buckman/skimmer/internal/model"
	"github.com/bryan-buckman/skimmer/internal/pageinfo"
	"github.com/bryan-buckman/skimmer/internal/rss"
	"github.com/bryan-buckman/skimmer/internal/subscription"
)

const exampleFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel>
  <title>Example Blog</title>
  <link>https://example.com</link>
  <image><url>https://example.com/logo.png</url></image>
  <item>
    <title>Post</title>
    <link>https://example.com/1</link>
    <pubDate>2024-01-01T00:00:00Z</pubDate>
  </item>
</channel></rss>`

type fakeFetcher struct {
	mu    sync.Mutex
	docs  map[string]string
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	doc, ok := f.docs[url]
	if !ok {
		return nil, &fetch.Error{URL: url, Kind: fetch.KindConnection, Err: errors.New("connection refused")}
	}
	return []byte(doc), nil
}

// fakePages knows the page info of a fixed set of URLs.
type fakePages map[string]pageinfo.Info

func (p fakePages) Extract(_ context.Context, url string) (*pageinfo.Info, error) {
	info, ok := p[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s", pageinfo.ErrCantGetPageInfo, url)
	}
	return &info, nil
}

func newStore(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "skimmer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSubscribePrefersFavicon(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<rss version="2.0"><channel><title>Site</title><link>%[1]s/</link>
<image><url>%[1]s/logo.png</url></image></channel></rss>`, srv.URL)
	})
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Site</title><link rel="icon" href="/favicon.png"></head></html>`)
	})
	mux.HandleFunc("/favicon.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("png"))
	})

	client := fetch.New(fetch.WithTimeout(2 * time.Second))
	m := subscription.NewManager(newStore(t), client, pageinfo.New(client))

	sub, err := m.Subscribe(context.Background(), 1, srv.URL+"/feed")
	require.NoError(t, err)
	assert.Equal(t, "Site", sub.Title)
	assert.Equal(t, srv.URL+"/", sub.SiteURL)
	assert.Equal(t, srv.URL+"/favicon.png", model.StringValue(sub.ImageURL))
}

func TestSubscribeImageFallback(t *testing.T) {
	tests := []struct {
		name  string
		pages fakePages
		want  string
	}{
		{name: "page info fails", pages: fakePages{}, want: "https://example.com/logo.png"},
		{name: "no favicon", pages: fakePages{"https://example.com": {Title: "Example"}}, want: "https://example.com/logo.png"},
		{name: "favicon", pages: fakePages{"https://example.com": {FaviconURL: "https://example.com/icon.ico"}}, want: "https://example.com/icon.ico"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{docs: map[string]string{"https://example.com/feed": exampleFeed}}
			m := subscription.NewManager(newStore(t), fetcher, tt.pages)

			sub, err := m.Subscribe(context.Background(), 1, "https://example.com/feed")
			require.NoError(t, err)
			assert.Equal(t, tt.want, model.StringValue(sub.ImageURL))
		})
	}
}

func TestSubscribeRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	fetcher := &fakeFetcher{docs: map[string]string{"https://example.com/feed": exampleFeed}}
	m := subscription.NewManager(store, fetcher, fakePages{})

	_, err := m.Subscribe(ctx, 1, "https://example.com/feed")
	require.NoError(t, err)
	calls := fetcher.calls

	_, err = m.Subscribe(ctx, 1, " https://example.com/feed ")
	assert.ErrorIs(t, err, subscription.ErrAlreadySubscribed)
	assert.False(t, errors.Is(err, subscription.ErrCannotSubscribe))
	assert.Equal(t, calls, fetcher.calls, "precondition must be checked before fetching")

	stats, err := store.ListSubscriptionsByOwner(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, stats, 1)

	// Other owners are unaffected.
	_, err = m.Subscribe(ctx, 2, "https://example.com/feed")
	assert.NoError(t, err)
}

func TestSubscribeFailures(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		cause error
	}{
		{name: "unreachable", cause: rss.ErrCantGetFeed},
		{name: "unparsable", doc: "<html><body>nope</body></html>", cause: rss.ErrParse},
		{name: "no title", doc: `<rss version="2.0"><channel><link>https://example.com</link></channel></rss>`, cause: subscription.ErrMissingChannelInfo},
		{name: "no link", doc: `<rss version="2.0"><channel><title>T</title></channel></rss>`, cause: subscription.ErrMissingChannelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			fetcher := &fakeFetcher{docs: map[string]string{}}
			if tt.doc != "" {
				fetcher.docs["https://example.com/feed"] = tt.doc
			}
			m := subscription.NewManager(store, fetcher, fakePages{})

			sub, err := m.Subscribe(ctx, 1, "https://example.com/feed")
			assert.Nil(t, sub)
			assert.ErrorIs(t, err, subscription.ErrCannotSubscribe)
			assert.ErrorIs(t, err, tt.cause)

			var serr *subscription.Error
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, "https://example.com/feed", serr.URL)

			exists, err := store.SubscriptionExists(ctx, 1, "https://example.com/feed")
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestSubscribeThenUpdate(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	fetcher := &fakeFetcher{docs: map[string]string{"https://example.com/feed": exampleFeed}}
	pages := fakePages{}
	m := subscription.NewManager(store, fetcher, pages)
	u := rss.NewUpdater(store, fetcher, pages, rss.WithDomainDelay(0))

	sub, err := m.Subscribe(ctx, 1, "https://example.com/feed")
	require.NoError(t, err)
	assert.Equal(t, 1, u.UpdateFeed(ctx, *sub))

	subs, err := store.ListSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "Example Blog", subs[0].Title)

	entries, err := store.ListEntries(ctx, model.EntryFilter{SubscriptionID: &sub.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Post", entries[0].Title)
	assert.True(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Equal(entries[0].PublishedAt))
	assert.Empty(t, entries[0].Tags)
}

func TestSubscribeAll(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	fetcher := &fakeFetcher{docs: map[string]string{
		"https://a.example/feed": exampleFeed,
		"https://b.example/feed": exampleFeed,
		"https://c.example/feed": exampleFeed,
	}}
	m := subscription.NewManager(store, fetcher, fakePages{})

	_, err := m.Subscribe(ctx, 1, "https://c.example/feed")
	require.NoError(t, err)

	result := m.SubscribeAll(ctx, 1, []subscription.Request{
		{URL: "https://a.example/feed", Folder: "Tech"},
		{URL: "https://b.example/feed", Folder: "Tech"},
		{URL: "https://c.example/feed"},
		{URL: "https://down.example/feed", Folder: "Tech"},
	})

	require.Len(t, result.Created, 2)
	assert.Equal(t, []string{"https://c.example/feed"}, result.Skipped)
	require.Contains(t, result.Failed, "https://down.example/feed")
	assert.ErrorIs(t, result.Failed["https://down.example/feed"], subscription.ErrCannotSubscribe)

	folders, err := store.ListFolders(ctx, 1)
	require.NoError(t, err)
	require.Len(t, folders, 1)
	for _, sub := range result.Created {
		require.NotNil(t, sub.FolderID)
		assert.Equal(t, folders[0].ID, *sub.FolderID)
	}
}

func TestResolveMissingImages(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	for _, s := range []model.Subscription{
		{OwnerID: 1, Title: "Icon", URL: "https://icon.example/feed", SiteURL: "https://icon.example"},
		{OwnerID: 1, Title: "OG", URL: "https://og.example/feed", SiteURL: "https://og.example"},
		{OwnerID: 1, Title: "Bare", URL: "https://bare.example/feed", SiteURL: "https://bare.example"},
		{OwnerID: 1, Title: "Down", URL: "https://down.example/feed", SiteURL: "https://down.example"},
	} {
		require.NoError(t, store.CreateSubscription(ctx, &s))
	}
	pages := fakePages{
		"https://icon.example": {FaviconURL: "https://icon.example/favicon.ico", ImageURL: "https://icon.example/og.png"},
		"https://og.example":   {ImageURL: "https://og.example/og.png"},
		"https://bare.example": {Title: "Bare"},
	}
	m := subscription.NewManager(store, &fakeFetcher{}, pages)

	n, err := m.ResolveMissingImages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	subs, err := store.ListSubscriptions(ctx)
	require.NoError(t, err)
	images := map[string]string{}
	for _, s := range subs {
		images[s.Title] = model.StringValue(s.ImageURL)
	}
	assert.Equal(t, map[string]string{
		"Icon": "https://icon.example/favicon.ico",
		"OG":   "https://og.example/og.png",
		"Bare": "",
		"Down": "",
	}, images)
}

func TestImportExportOPML(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	fetcher := &fakeFetcher{docs: map[string]string{
		"https://a.example/feed": exampleFeed,
		"https://b.example/feed": exampleFeed,
	}}
	m := subscription.NewManager(store, fetcher, fakePages{})

	doc := `<opml version="2.0"><body>
<outline text="Loose" xmlUrl="https://a.example/feed"/>
<outline text="News"><outline text="B" xmlUrl="https://b.example/feed"/></outline>
<outline text="Down" xmlUrl="https://down.example/feed"/>
</body></opml>`
	result, total, err := m.ImportOPML(ctx, 1, strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, result.Created, 2)
	assert.Len(t, result.Failed, 1)

	_, _, err = m.ImportOPML(ctx, 1, strings.NewReader("not xml"))
	assert.Error(t, err)

	data, err := m.ExportOPML(ctx, 1)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `xmlUrl="https://a.example/feed"`)
	assert.Contains(t, out, `<outline text="News" title="News">`)
	assert.NotContains(t, out, "down.example")
}
