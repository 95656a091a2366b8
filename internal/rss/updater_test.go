package rss_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-buckman/skimmer/internal/database"
	"github.com/bryan-buckman/skimmer/internal/fetch"
	"github.com/bryan-buckman/skimmer/internal/model"
	"github.com/bryan-buckman/skimmer/internal/pageinfo"
	"github.com/bryan-buckman/skimmer/internal/rss"
)

var ingestedAt = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

// fakeFetcher serves canned documents and errors by URL.
type fakeFetcher struct {
	mu     sync.Mutex
	docs   map[string]string
	errs   map[string]error
	counts map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{docs: map[string]string{}, errs: map[string]error{}, counts: map[string]int{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[url]++
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	doc, ok := f.docs[url]
	if !ok {
		return nil, &fetch.Error{URL: url, Kind: fetch.KindStatus, StatusCode: 404}
	}
	return []byte(doc), nil
}

// fakePages returns an og:image derived from the link, failing or panicking for chosen links.
type fakePages struct {
	fail  map[string]bool
	panic map[string]bool
}

func (p fakePages) Extract(_ context.Context, url string) (*pageinfo.Info, error) {
	if p.panic[url] {
		panic("boom")
	}
	if p.fail[url] {
		return nil, fmt.Errorf("%w: simulated", pageinfo.ErrCantGetPageInfo)
	}
	return &pageinfo.Info{Title: "Page", ImageURL: url + "/cover.png"}, nil
}

type feedItem struct {
	title, link, pubDate string
	categories           []string
}

func rssDocument(title, link string, items ...feedItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0"?><rss version="2.0"><channel><title>%s</title><link>%s</link>`, title, link)
	for _, it := range items {
		fmt.Fprintf(&b, "<item><title>%s</title><link>%s</link>", it.title, it.link)
		if it.pubDate != "" {
			fmt.Fprintf(&b, "<pubDate>%s</pubDate>", it.pubDate)
		}
		for _, c := range it.categories {
			fmt.Fprintf(&b, "<category>%s</category>", c)
		}
		b.WriteString("</item>")
	}
	b.WriteString("</channel></rss>")
	return b.String()
}

func numberedItems(base string, n int) []feedItem {
	items := make([]feedItem, n)
	for i := range items {
		items[i] = feedItem{
			title:   fmt.Sprintf("Post %d", i+1),
			link:    fmt.Sprintf("%s/%d", base, i+1),
			pubDate: "Mon, 01 Jan 2024 10:00:00 +0000",
		}
	}
	return items
}

type env struct {
	store   *database.DB
	fetcher *fakeFetcher
	pages   fakePages
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store, err := database.New(filepath.Join(t.TempDir(), "skimmer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return &env{
		store:   store,
		fetcher: newFakeFetcher(),
		pages:   fakePages{fail: map[string]bool{}, panic: map[string]bool{}},
	}
}

func (e *env) updater() *rss.Updater {
	return rss.NewUpdater(e.store, e.fetcher, e.pages,
		rss.WithDomainDelay(0),
		rss.WithClock(func() time.Time { return ingestedAt }),
	)
}

func (e *env) subscribe(t *testing.T, owner int64, url string) model.Subscription {
	t.Helper()
	sub := model.Subscription{OwnerID: owner, Title: url, URL: url, SiteURL: url}
	require.NoError(t, e.store.CreateSubscription(context.Background(), &sub))
	return sub
}

func (e *env) entries(t *testing.T, sub model.Subscription) []model.Entry {
	t.Helper()
	entries, err := e.store.ListEntries(context.Background(), model.EntryFilter{SubscriptionID: &sub.ID})
	require.NoError(t, err)
	return entries
}

func TestUpdateFeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.fetcher.docs["https://a.example/feed"] = rssDocument("A", "https://a.example", numberedItems("https://a.example", 3)...)
	sub := e.subscribe(t, 1, "https://a.example/feed")
	u := e.updater()

	assert.Equal(t, 3, u.UpdateFeed(ctx, sub))
	assert.Equal(t, 0, u.UpdateFeed(ctx, sub))
	assert.Len(t, e.entries(t, sub), 3)
}

func TestUpdateFeedDedupScope(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	doc := rssDocument("A", "https://a.example", numberedItems("https://shared.example", 2)...)
	e.fetcher.docs["https://a.example/feed"] = doc
	e.fetcher.docs["https://mirror.example/feed"] = doc
	a := e.subscribe(t, 1, "https://a.example/feed")
	b := e.subscribe(t, 1, "https://mirror.example/feed")
	u := e.updater()

	assert.Equal(t, 2, u.UpdateFeed(ctx, a))
	assert.Equal(t, 2, u.UpdateFeed(ctx, b))
	assert.Len(t, e.entries(t, a), 2)
	assert.Len(t, e.entries(t, b), 2)
}

func TestUpdateFeedDuplicateLinksInOneDocument(t *testing.T) {
	e := newEnv(t)
	item := feedItem{title: "Same", link: "https://a.example/same"}
	e.fetcher.docs["https://a.example/feed"] = rssDocument("A", "https://a.example", item, item, item, item)
	sub := e.subscribe(t, 1, "https://a.example/feed")

	assert.Equal(t, 1, e.updater().UpdateFeed(context.Background(), sub))
	assert.Len(t, e.entries(t, sub), 1)
}

func TestUpdateFeedPublicationDate(t *testing.T) {
	e := newEnv(t)
	e.fetcher.docs["https://a.example/feed"] = rssDocument("A", "https://a.example",
		feedItem{title: "Dated", link: "https://a.example/dated", pubDate: "Tue, 02 Jan 2024 15:04:05 +0000"},
		feedItem{title: "Undated", link: "https://a.example/undated"},
	)
	sub := e.subscribe(t, 1, "https://a.example/feed")
	require.Equal(t, 2, e.updater().UpdateFeed(context.Background(), sub))

	byURL := map[string]model.Entry{}
	for _, entry := range e.entries(t, sub) {
		assert.False(t, entry.PublishedAt.IsZero())
		byURL[entry.URL] = entry
	}
	assert.True(t, time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC).Equal(byURL["https://a.example/dated"].PublishedAt))
	assert.True(t, ingestedAt.Equal(byURL["https://a.example/undated"].PublishedAt))
}

func TestUpdateFeedSharesNormalizedTags(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.fetcher.docs["https://a.example/feed"] = rssDocument("A", "https://a.example",
		feedItem{title: "One", link: "https://a.example/1", categories: []string{" Web,", "go"}},
		feedItem{title: "Two", link: "https://a.example/2", categories: []string{"web", " , "}},
	)
	e.fetcher.docs["https://b.example/feed"] = rssDocument("B", "https://b.example",
		feedItem{title: "Three", link: "https://b.example/3", categories: []string{"WEB"}},
	)
	a := e.subscribe(t, 1, "https://a.example/feed")
	b := e.subscribe(t, 2, "https://b.example/feed")
	u := e.updater()
	require.Equal(t, 2, u.UpdateFeed(ctx, a))
	require.Equal(t, 1, u.UpdateFeed(ctx, b))

	tags, err := e.store.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "Web", tags[0].Title)
	assert.Equal(t, 3, tags[0].EntryCount)
	assert.Equal(t, "Go", tags[1].Title)
}

func TestUpdateFeedConcurrentTagCreation(t *testing.T) {
	e := newEnv(t)
	items := numberedItems("https://a.example", 40)
	for i := range items {
		items[i].categories = []string{"Shared", fmt.Sprintf("tag %d", i%3)}
	}
	e.fetcher.docs["https://a.example/feed"] = rssDocument("A", "https://a.example", items...)
	sub := e.subscribe(t, 1, "https://a.example/feed")

	assert.Equal(t, 40, e.updater().UpdateFeed(context.Background(), sub))

	tags, err := e.store.ListTags(context.Background())
	require.NoError(t, err)
	assert.Len(t, tags, 4)
	for _, entry := range e.entries(t, sub) {
		assert.Len(t, entry.Tags, 2)
	}
}

func TestUpdateFeedItemIsolation(t *testing.T) {
	e := newEnv(t)
	e.fetcher.docs["https://a.example/feed"] = rssDocument("A", "https://a.example", numberedItems("https://a.example", 5)...)
	e.pages.fail["https://a.example/3"] = true
	sub := e.subscribe(t, 1, "https://a.example/feed")

	assert.Equal(t, 5, e.updater().UpdateFeed(context.Background(), sub))

	entries := e.entries(t, sub)
	require.Len(t, entries, 5)
	for _, entry := range entries {
		if entry.URL == "https://a.example/3" {
			assert.Nil(t, entry.ImageURL)
		} else {
			assert.Equal(t, entry.URL+"/cover.png", model.StringValue(entry.ImageURL))
		}
	}
}

func TestUpdateFeedRecoversItemPanic(t *testing.T) {
	e := newEnv(t)
	e.fetcher.docs["https://a.example/feed"] = rssDocument("A", "https://a.example", numberedItems("https://a.example", 5)...)
	e.pages.panic["https://a.example/2"] = true
	sub := e.subscribe(t, 1, "https://a.example/feed")

	assert.Equal(t, 4, e.updater().UpdateFeed(context.Background(), sub))
	assert.Len(t, e.entries(t, sub), 4)
}

func TestUpdateFeedNoData(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		err  error
	}{
		{name: "fetch timeout", err: &fetch.Error{URL: "https://a.example/feed", Kind: fetch.KindReadTimeout}},
		{name: "unparsable", doc: "this is not a feed"},
		{name: "no items", doc: rssDocument("A", "https://a.example")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			if tt.err != nil {
				e.fetcher.errs["https://a.example/feed"] = tt.err
			} else {
				e.fetcher.docs["https://a.example/feed"] = tt.doc
			}
			sub := e.subscribe(t, 1, "https://a.example/feed")

			assert.Zero(t, e.updater().UpdateFeed(context.Background(), sub))
			assert.Empty(t, e.entries(t, sub))
		})
	}
}

func TestUpdateAllIsolatesFeeds(t *testing.T) {
	e := newEnv(t)
	e.fetcher.docs["https://one.example/feed"] = rssDocument("1", "https://one.example", numberedItems("https://one.example", 2)...)
	e.fetcher.errs["https://two.example/feed"] = &fetch.Error{URL: "https://two.example/feed", Kind: fetch.KindConnectTimeout}
	e.fetcher.docs["https://three.example/feed"] = rssDocument("3", "https://three.example", numberedItems("https://three.example", 3)...)
	one := e.subscribe(t, 1, "https://one.example/feed")
	two := e.subscribe(t, 1, "https://two.example/feed")
	three := e.subscribe(t, 1, "https://three.example/feed")

	summary := e.updater().UpdateAll(context.Background())

	assert.Equal(t, rss.Summary{Feeds: 3, NewEntries: 5}, summary)
	assert.Len(t, e.entries(t, one), 2)
	assert.Empty(t, e.entries(t, two))
	assert.Len(t, e.entries(t, three), 3)
}

func TestUpdateAllStopsWhenCancelled(t *testing.T) {
	e := newEnv(t)
	e.fetcher.docs["https://one.example/feed"] = rssDocument("1", "https://one.example", numberedItems("https://one.example", 2)...)
	e.subscribe(t, 1, "https://one.example/feed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, rss.Summary{}, e.updater().UpdateAll(ctx))
}

func TestPollerRunsImmediately(t *testing.T) {
	e := newEnv(t)
	e.fetcher.docs["https://one.example/feed"] = rssDocument("1", "https://one.example", numberedItems("https://one.example", 2)...)
	sub := e.subscribe(t, 1, "https://one.example/feed")

	p := rss.NewPoller(e.updater(), time.Hour)
	p.Start()
	assert.Eventually(t, func() bool {
		n, err := e.store.CountEntries(context.Background(), model.EntryFilter{SubscriptionID: &sub.ID})
		return err == nil && n == 2
	}, 5*time.Second, 20*time.Millisecond)
	p.Stop()
}

// slowPages records how many Extract calls run at once.
type slowPages struct {
	inFlight, peak atomic.Int32
}

func (p *slowPages) Extract(_ context.Context, url string) (*pageinfo.Info, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return &pageinfo.Info{ImageURL: url + "/cover.png"}, nil
}

func TestUpdateFeedBoundsWorkers(t *testing.T) {
	tests := []struct {
		name  string
		items int
		opts  []rss.Option
		limit int32
	}{
		{name: "configured", items: 12, opts: []rss.Option{rss.WithWorkers(3)}, limit: 3},
		{name: "default", items: 30, limit: rss.DefaultWorkers},
		{name: "invalid ignored", items: 30, opts: []rss.Option{rss.WithWorkers(0)}, limit: rss.DefaultWorkers},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.fetcher.docs["https://a.example/feed"] = rssDocument("A", "https://a.example", numberedItems("https://a.example", tt.items)...)
			sub := e.subscribe(t, 1, "https://a.example/feed")

			pages := &slowPages{}
			opts := append([]rss.Option{rss.WithDomainDelay(0)}, tt.opts...)
			u := rss.NewUpdater(e.store, e.fetcher, pages, opts...)

			assert.Equal(t, tt.items, u.UpdateFeed(context.Background(), sub))
			assert.LessOrEqual(t, pages.peak.Load(), tt.limit)
			assert.Greater(t, pages.peak.Load(), int32(1))
		})
	}
}

// racingStore reports unique conflicts as if another worker won the race.
// CreateTag conflicts after its insert went through; CreateEntry conflicts
// without inserting.
type racingStore struct {
	database.Store
	tagConflicts   atomic.Int32
	entryConflicts atomic.Int32
}

func (s *racingStore) CreateTag(ctx context.Context, title string) (*model.Tag, error) {
	tag, err := s.Store.CreateTag(ctx, title)
	if err == nil && s.tagConflicts.Add(-1) >= 0 {
		return nil, fmt.Errorf("%w: tag %q", database.ErrConflict, title)
	}
	return tag, err
}

func (s *racingStore) CreateEntry(ctx context.Context, entry *model.Entry) error {
	if s.entryConflicts.Add(-1) >= 0 {
		return fmt.Errorf("%w: entry %q", database.ErrConflict, entry.URL)
	}
	return s.Store.CreateEntry(ctx, entry)
}

func TestUpdateFeedResolvesConflicts(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.fetcher.docs["https://a.example/feed"] = rssDocument("A", "https://a.example",
		feedItem{title: "One", link: "https://a.example/1", categories: []string{"race"}},
	)
	sub := e.subscribe(t, 1, "https://a.example/feed")

	store := &racingStore{Store: e.store}
	store.tagConflicts.Store(1)
	store.entryConflicts.Store(1)
	u := rss.NewUpdater(store, e.fetcher, e.pages, rss.WithDomainDelay(0))

	// The entry conflict counts as already stored.
	assert.Equal(t, 0, u.UpdateFeed(ctx, sub))
	assert.Empty(t, e.entries(t, sub))

	assert.Equal(t, 1, u.UpdateFeed(ctx, sub))
	entries := e.entries(t, sub)
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Tags, 1)
	assert.Equal(t, "Race", entries[0].Tags[0].Title)

	tags, err := e.store.ListTags(ctx)
	require.NoError(t, err)
	assert.Len(t, tags, 1)
}
