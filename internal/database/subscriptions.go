package database

import (
	"context"
	"database/sql"
	"fmt"

	sqlbuilder "github.com/huandu/go-sqlbuilder"

	"github.com/bryan-buckman/skimmer/internal/model"
)

// SubscriptionExists reports whether the owner already holds a subscription to url.
func (db *DB) SubscriptionExists(ctx context.Context, ownerID int64, url string) (bool, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select("COUNT(*)").
		From("subscriptions").
		Where(sb.Equal("owner_id", ownerID), sb.Equal("url", url))
	return db.exists(ctx, sb)
}

// CreateSubscription inserts sub and fills in its ID and timestamps.
func (db *DB) CreateSubscription(ctx context.Context, sub *model.Subscription) error {
	now := db.timestamp()
	ib := db.flavor.NewInsertBuilder()
	ib.InsertInto("subscriptions").
		Cols("owner_id", "folder_id", "title", "url", "site_url", "image_url", "created_at", "updated_at").
		Values(sub.OwnerID, sub.FolderID, sub.Title, sub.URL, sub.SiteURL, sub.ImageURL, now, now)
	query, args := ib.Build()

	if err := db.conn.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&sub.ID); err != nil {
		return fmt.Errorf("create subscription: %w", db.translate(err))
	}
	sub.CreatedAt, sub.UpdatedAt = now, now
	return nil
}

// GetSubscription retrieves a subscription by ID.
func (db *DB) GetSubscription(ctx context.Context, subscriptionID int64) (*model.Subscription, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select(subscriptionColumns...).From("subscriptions s").Where(sb.Equal("s.id", subscriptionID))
	query, args := sb.Build()

	sub, err := scanSubscription(db.conn.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, db.translate(err)
	}
	return sub, nil
}

// ListSubscriptions returns every stored subscription in creation order.
func (db *DB) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select(subscriptionColumns...).From("subscriptions s").OrderBy("s.id")
	return db.querySubscriptions(ctx, sb)
}

// ListSubscriptionsWithoutImage returns subscriptions that have no image yet.
func (db *DB) ListSubscriptionsWithoutImage(ctx context.Context) ([]model.Subscription, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select(subscriptionColumns...).
		From("subscriptions s").
		Where(sb.Or(sb.IsNull("s.image_url"), sb.Equal("s.image_url", ""))).
		OrderBy("s.id")
	return db.querySubscriptions(ctx, sb)
}

func (db *DB) querySubscriptions(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]model.Subscription, error) {
	query, args := sb.Build()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// ListSubscriptionsByOwner returns the owner's subscriptions with entry counters,
// most recently published first. Subscriptions without entries come last.
func (db *DB) ListSubscriptionsByOwner(ctx context.Context, ownerID int64) ([]model.SubscriptionStats, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select(subscriptionColumns...).
		SelectMore(
			"COUNT(e.id)",
			"COUNT(CASE WHEN e.is_read = FALSE THEN 1 END)",
			sb.As("MAX(e.published_at)", "latest_entry_date"),
		).
		From("subscriptions s").
		JoinWithOption(sqlbuilder.LeftJoin, "entries e", "e.subscription_id = s.id").
		Where(sb.Equal("s.owner_id", ownerID)).
		GroupBy("s.id").
		OrderBy("latest_entry_date DESC NULLS LAST", "s.title")
	query, args := sb.Build()

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []model.SubscriptionStats
	for rows.Next() {
		var st model.SubscriptionStats
		var folderID sql.NullInt64
		var image sql.NullString
		var created, updated, latest nullTime
		dest := subscriptionDest(&st.Subscription, &folderID, &image, &created, &updated)
		dest = append(dest, &st.TotalCount, &st.UnreadCount, &latest)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		finishSubscription(&st.Subscription, folderID, image, created, updated)
		st.LatestEntryDate = latest.ptr()
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// UpdateSubscriptionImage sets the subscription's image URL.
func (db *DB) UpdateSubscriptionImage(ctx context.Context, subscriptionID int64, imageURL string) error {
	ub := db.flavor.NewUpdateBuilder()
	ub.Update("subscriptions").
		Set(ub.Assign("image_url", model.StringPtr(imageURL)), ub.Assign("updated_at", db.timestamp())).
		Where(ub.Equal("id", subscriptionID))
	return db.execUpdate(ctx, ub)
}

// UpdateSubscription stores the editable fields of sub: folder, title, feed URL,
// site URL and image. A nil FolderID detaches the subscription from its folder.
func (db *DB) UpdateSubscription(ctx context.Context, sub *model.Subscription) error {
	now := db.timestamp()
	ub := db.flavor.NewUpdateBuilder()
	ub.Update("subscriptions").
		Set(
			ub.Assign("folder_id", sub.FolderID),
			ub.Assign("title", sub.Title),
			ub.Assign("url", sub.URL),
			ub.Assign("site_url", sub.SiteURL),
			ub.Assign("image_url", sub.ImageURL),
			ub.Assign("updated_at", now),
		).
		Where(ub.Equal("id", sub.ID))
	if err := db.execUpdate(ctx, ub); err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	sub.UpdatedAt = now
	return nil
}

// DeleteSubscription removes a subscription and, by cascade, its entries.
func (db *DB) DeleteSubscription(ctx context.Context, subscriptionID int64) error {
	dlb := db.flavor.NewDeleteBuilder()
	dlb.DeleteFrom("subscriptions").Where(dlb.Equal("id", subscriptionID))
	query, args := dlb.Build()

	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", db.translate(err))
	}
	return expectAffected(res)
}

func (db *DB) execUpdate(ctx context.Context, ub *sqlbuilder.UpdateBuilder) error {
	query, args := ub.Build()
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return db.translate(err)
	}
	return expectAffected(res)
}

// exists runs a COUNT(*) query and reports whether it matched anything.
func (db *DB) exists(ctx context.Context, sb *sqlbuilder.SelectBuilder) (bool, error) {
	query, args := sb.Build()
	var n int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}
