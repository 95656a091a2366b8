package rss

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bryan-buckman/skimmer/internal/database"
	"github.com/bryan-buckman/skimmer/internal/fetch"
	"github.com/bryan-buckman/skimmer/internal/model"
	"github.com/bryan-buckman/skimmer/internal/pageinfo"
)

// DefaultWorkers bounds how many items of one feed are processed at once.
const DefaultWorkers = 20

// tagRetries bounds get-or-create attempts when another worker races us to a tag.
const tagRetries = 5

// PageInfoExtractor reads metadata of an item's web page. *pageinfo.Extractor satisfies it.
type PageInfoExtractor interface {
	Extract(ctx context.Context, url string) (*pageinfo.Info, error)
}

// Summary reports the outcome of a batch update.
type Summary struct {
	Feeds      int
	NewEntries int
}

// Updater stores new entries for existing subscriptions.
type Updater struct {
	store   database.Store
	fetcher Fetcher
	pages   PageInfoExtractor
	workers int
	limiter *hostLimiter
	now     func() time.Time
}

// Option configures an Updater.
type Option func(*Updater)

// WithWorkers sets the per-feed item worker count. Values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(u *Updater) {
		if n > 0 {
			u.workers = n
		}
	}
}

// WithDomainDelay sets the minimum delay between feed requests to one host.
func WithDomainDelay(d time.Duration) Option {
	return func(u *Updater) { u.limiter = newHostLimiter(d) }
}

// WithClock replaces time.Now as the source of ingestion time.
func WithClock(now func() time.Time) Option {
	return func(u *Updater) { u.now = now }
}

// NewUpdater creates an Updater.
func NewUpdater(store database.Store, fetcher Fetcher, pages PageInfoExtractor, opts ...Option) *Updater {
	u := &Updater{
		store:   store,
		fetcher: fetcher,
		pages:   pages,
		workers: DefaultWorkers,
		limiter: newHostLimiter(DefaultDomainDelay),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// UpdateFeed fetches the subscription's feed and stores the items it does not
// have yet. It never fails: problems are logged and count as zero new entries.
// Returns the number of entries created.
func (u *Updater) UpdateFeed(ctx context.Context, sub model.Subscription) int {
	logger := log.WithFields(log.Fields{"subscription": sub.ID, "url": sub.URL})

	doc, err := u.load(ctx, sub.URL)
	if err != nil {
		result := "error"
		if fetch.IsTimeout(err) {
			result = "timeout"
		}
		feedUpdates.WithLabelValues(result).Inc()
		logger.WithError(err).Warn("Cannot update feed")
		return 0
	}
	if len(doc.Items) == 0 {
		feedUpdates.WithLabelValues("empty").Inc()
		logger.Info("Feed has no items")
		return 0
	}

	var created atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(u.workers)
	for _, item := range doc.Items {
		item := item
		g.Go(func() error {
			ok, err := u.processItem(ctx, sub, item)
			if err != nil {
				itemFailures.Inc()
				logger.WithError(err).WithField("link", item.Link).Error("Cannot store feed item")
				return nil
			}
			if ok {
				created.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	n := int(created.Load())
	feedUpdates.WithLabelValues("ok").Inc()
	logger.WithFields(log.Fields{"items": len(doc.Items), "new": n}).Info("Feed updated")
	return n
}

// UpdateAll updates every stored subscription one after another.
// A failing feed never stops the loop.
func (u *Updater) UpdateAll(ctx context.Context) Summary {
	subs, err := u.store.ListSubscriptions(ctx)
	if err != nil {
		log.WithError(err).Error("Cannot list subscriptions")
		return Summary{}
	}

	log.WithField("feeds", len(subs)).Info("Updating all feeds")
	var summary Summary
	for i, sub := range subs {
		if ctx.Err() != nil {
			log.WithField("done", i).Warn("Feed update cancelled")
			break
		}
		summary.NewEntries += u.safeUpdateFeed(ctx, sub)
		summary.Feeds++

		if (i+1)%50 == 0 {
			log.Infof("Progress: %d/%d feeds updated", i+1, len(subs))
		}
	}

	log.WithFields(log.Fields{"feeds": summary.Feeds, "new": summary.NewEntries}).Info("All feeds updated")
	return summary
}

func (u *Updater) safeUpdateFeed(ctx context.Context, sub model.Subscription) (n int) {
	defer func() {
		if r := recover(); r != nil {
			feedUpdates.WithLabelValues("panic").Inc()
			log.WithFields(log.Fields{"subscription": sub.ID, "panic": r}).Error("Feed update panicked")
			n = 0
		}
	}()
	return u.UpdateFeed(ctx, sub)
}

func (u *Updater) load(ctx context.Context, feedURL string) (*Document, error) {
	release, err := u.limiter.wait(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("rate limit cancelled for %s: %w", feedURL, err)
	}
	defer release()

	start := time.Now()
	defer func() { feedFetchDuration.Observe(time.Since(start).Seconds()) }()
	return Load(ctx, u.fetcher, feedURL)
}

// processItem stores item unless the subscription already has it.
// It reports whether a new entry was created.
func (u *Updater) processItem(ctx context.Context, sub model.Subscription, item Item) (created bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	if item.Link == "" {
		return false, nil
	}
	exists, err := u.store.EntryExists(ctx, sub.ID, item.Link)
	if err != nil {
		return false, fmt.Errorf("check entry: %w", err)
	}
	if exists {
		return false, nil
	}

	entry := &model.Entry{
		SubscriptionID: sub.ID,
		Title:          item.Title,
		URL:            item.Link,
		Author:         model.StringPtr(item.Author),
		Description:    model.StringPtr(item.Description),
		Summary:        model.StringPtr(item.Summary),
		PublishedAt:    publicationDate(item, u.now()),
		UpdatedDate:    item.UpdatedAt,
	}
	if content, ok := item.HTMLContent(); ok {
		entry.Content = model.StringPtr(content)
	}

	if info, err := u.pages.Extract(ctx, item.Link); err != nil {
		log.WithError(err).WithField("link", item.Link).Debug("No page info for item")
	} else {
		entry.ImageURL = model.StringPtr(info.ImageURL)
	}

	titles := lo.Uniq(lo.Filter(lo.Map(item.Tags, func(term string, _ int) string {
		return model.NormalizeTagTitle(term)
	}), func(title string, _ int) bool { return title != "" }))
	for _, title := range titles {
		tag, err := u.getOrCreateTag(ctx, title)
		if err != nil {
			return false, fmt.Errorf("tag %q: %w", title, err)
		}
		entry.Tags = append(entry.Tags, *tag)
	}

	if err := u.store.CreateEntry(ctx, entry); err != nil {
		if errors.Is(err, database.ErrConflict) {
			// Another worker stored the same link first.
			return false, nil
		}
		return false, err
	}
	entriesCreated.Inc()
	return true, nil
}

// getOrCreateTag finds the tag or creates it. A unique conflict means a
// concurrent worker created it, so the lookup is retried.
func (u *Updater) getOrCreateTag(ctx context.Context, title string) (*model.Tag, error) {
	op := func() (*model.Tag, error) {
		tag, err := u.store.FindTagByTitle(ctx, title)
		if err == nil {
			return tag, nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			return nil, backoff.Permanent(err)
		}
		tag, err = u.store.CreateTag(ctx, title)
		switch {
		case err == nil:
			return tag, nil
		case errors.Is(err, database.ErrConflict):
			return nil, err
		default:
			return nil, backoff.Permanent(err)
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	return backoff.RetryWithData(op, backoff.WithContext(backoff.WithMaxRetries(b, tagRetries), ctx))
}

// publicationDate falls back from the published date to the updated date to now.
func publicationDate(item Item, now time.Time) time.Time {
	switch {
	case item.PublishedAt != nil:
		return *item.PublishedAt
	case item.UpdatedAt != nil:
		return *item.UpdatedAt
	default:
		return now
	}
}
