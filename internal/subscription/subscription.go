// Package subscription creates subscriptions from feed URLs.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/bryan-buckman/skimmer/internal/database"
	"github.com/bryan-buckman/skimmer/internal/model"
	"github.com/bryan-buckman/skimmer/internal/rss"
)

var (
	// ErrAlreadySubscribed is returned when the owner already holds the feed URL.
	ErrAlreadySubscribed = errors.New("already subscribed")
	// ErrCannotSubscribe is matched by every *Error.
	ErrCannotSubscribe = errors.New("cannot subscribe")
	// ErrMissingChannelInfo is the cause when a feed lacks its title or link.
	ErrMissingChannelInfo = errors.New("feed has no title or link")
)

// Error describes why a feed could not be subscribed to.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cannot subscribe to %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCannotSubscribe) true for every *Error.
func (e *Error) Is(target error) bool { return target == ErrCannotSubscribe }

// Manager subscribes owners to feeds.
type Manager struct {
	store   database.Store
	fetcher rss.Fetcher
	pages   rss.PageInfoExtractor
}

// NewManager creates a Manager.
func NewManager(store database.Store, fetcher rss.Fetcher, pages rss.PageInfoExtractor) *Manager {
	return &Manager{store: store, fetcher: fetcher, pages: pages}
}

// Subscribe creates a subscription for ownerID to feedURL.
func (m *Manager) Subscribe(ctx context.Context, ownerID int64, feedURL string) (*model.Subscription, error) {
	return m.SubscribeToFolder(ctx, ownerID, feedURL, nil)
}

// SubscribeToFolder is Subscribe with the new subscription filed under folderID.
// The image is the site's favicon when one is reachable, otherwise the
// channel image.
func (m *Manager) SubscribeToFolder(ctx context.Context, ownerID int64, feedURL string, folderID *int64) (*model.Subscription, error) {
	feedURL = strings.TrimSpace(feedURL)
	logger := log.WithFields(log.Fields{"owner": ownerID, "url": feedURL})

	exists, err := m.store.SubscriptionExists(ctx, ownerID, feedURL)
	if err != nil {
		return nil, &Error{URL: feedURL, Err: err}
	}
	if exists {
		logger.Warn("Already subscribed")
		return nil, ErrAlreadySubscribed
	}

	doc, err := rss.Load(ctx, m.fetcher, feedURL)
	if err != nil {
		logger.WithError(err).Warn("Cannot read feed")
		return nil, &Error{URL: feedURL, Err: err}
	}
	if doc.Title == "" || doc.Link == "" {
		logger.Warn("Title and link not found in feed")
		return nil, &Error{URL: feedURL, Err: ErrMissingChannelInfo}
	}

	image := doc.ImageURL
	if info, err := m.pages.Extract(ctx, doc.Link); err != nil {
		logger.WithError(err).Info("No page info for site")
	} else if info.FaviconURL != "" {
		image = info.FaviconURL
	}

	sub := &model.Subscription{
		OwnerID:  ownerID,
		FolderID: folderID,
		Title:    doc.Title,
		URL:      feedURL,
		SiteURL:  doc.Link,
		ImageURL: model.StringPtr(image),
	}
	if err := m.store.CreateSubscription(ctx, sub); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return nil, ErrAlreadySubscribed
		}
		return nil, &Error{URL: feedURL, Err: err}
	}

	logger.WithFields(log.Fields{"subscription": sub.ID, "image": model.StringValue(sub.ImageURL)}).Info("Subscribed")
	return sub, nil
}

// Request is one feed to subscribe to in a batch.
type Request struct {
	URL    string
	Folder string // created on demand; empty means no folder
}

// BatchResult reports the outcome of SubscribeAll.
type BatchResult struct {
	Created []model.Subscription
	Skipped []string         // already subscribed
	Failed  map[string]error // by feed URL
}

// SubscribeAll subscribes ownerID to every requested feed. Failures are
// collected per URL and never stop the batch.
func (m *Manager) SubscribeAll(ctx context.Context, ownerID int64, reqs []Request) BatchResult {
	result := BatchResult{Failed: make(map[string]error)}
	folders := make(map[string]int64)

	for _, req := range reqs {
		if ctx.Err() != nil {
			result.Failed[req.URL] = ctx.Err()
			continue
		}

		var folderID *int64
		if name := strings.TrimSpace(req.Folder); name != "" {
			id, ok := folders[name]
			if !ok {
				folder, err := m.store.GetOrCreateFolder(ctx, ownerID, name)
				if err != nil {
					result.Failed[req.URL] = &Error{URL: req.URL, Err: err}
					continue
				}
				id = folder.ID
				folders[name] = id
			}
			folderID = &id
		}

		sub, err := m.SubscribeToFolder(ctx, ownerID, req.URL, folderID)
		switch {
		case errors.Is(err, ErrAlreadySubscribed):
			result.Skipped = append(result.Skipped, req.URL)
		case err != nil:
			result.Failed[req.URL] = err
		default:
			result.Created = append(result.Created, *sub)
		}
	}

	log.WithFields(log.Fields{
		"owner":   ownerID,
		"created": len(result.Created),
		"skipped": len(result.Skipped),
		"failed":  len(result.Failed),
	}).Info("Batch subscribe finished")
	return result
}

// ResolveMissingImages sets an image on every subscription lacking one,
// preferring the site's favicon over its og:image. Returns how many were set.
func (m *Manager) ResolveMissingImages(ctx context.Context) (int, error) {
	subs, err := m.store.ListSubscriptionsWithoutImage(ctx)
	if err != nil {
		return 0, fmt.Errorf("list subscriptions: %w", err)
	}

	updated := 0
	for _, sub := range subs {
		logger := log.WithFields(log.Fields{"subscription": sub.ID, "site": sub.SiteURL})
		info, err := m.pages.Extract(ctx, sub.SiteURL)
		if err != nil {
			logger.WithError(err).Info("No page info for site")
			continue
		}
		image := info.FaviconURL
		if image == "" {
			image = info.ImageURL
		}
		if image == "" {
			continue
		}
		if err := m.store.UpdateSubscriptionImage(ctx, sub.ID, image); err != nil {
			return updated, fmt.Errorf("update subscription %d: %w", sub.ID, err)
		}
		logger.WithField("image", image).Info("Set subscription image")
		updated++
	}
	return updated, nil
}
