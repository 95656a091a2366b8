package subscription

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/samber/lo"

	"github.com/bryan-buckman/skimmer/internal/model"
	"github.com/bryan-buckman/skimmer/internal/opml"
)

// ImportOPML subscribes ownerID to every feed listed in an OPML document,
// filing each under its outline folder. It also returns the number of feeds found.
func (m *Manager) ImportOPML(ctx context.Context, ownerID int64, r io.Reader) (BatchResult, int, error) {
	entries, err := opml.Parse(r)
	if err != nil {
		return BatchResult{}, 0, err
	}
	reqs := lo.Map(entries, func(e opml.FeedEntry, _ int) Request {
		return Request{URL: e.URL, Folder: e.Folder}
	})
	return m.SubscribeAll(ctx, ownerID, reqs), len(entries), nil
}

// ExportOPML renders ownerID's subscriptions and folders as OPML.
func (m *Manager) ExportOPML(ctx context.Context, ownerID int64) ([]byte, error) {
	stats, err := m.store.ListSubscriptionsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	folders, err := m.store.ListFolders(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	subs := lo.Map(stats, func(s model.SubscriptionStats, _ int) model.Subscription { return s.Subscription })
	return opml.Export("Skimmer subscriptions", subs, folders, time.Now())
}
