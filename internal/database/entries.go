package database

import (
	"context"
	"fmt"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	"github.com/samber/lo"

	"github.com/bryan-buckman/skimmer/internal/model"
)

// EntryExists reports whether the subscription already stores an entry for url.
func (db *DB) EntryExists(ctx context.Context, subscriptionID int64, url string) (bool, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select("COUNT(*)").
		From("entries").
		Where(sb.Equal("subscription_id", subscriptionID), sb.Equal("url", url))
	return db.exists(ctx, sb)
}

// CreateEntry inserts the entry and its tag links in a single transaction.
// Tags must already carry their IDs.
func (db *DB) CreateEntry(ctx context.Context, entry *model.Entry) error {
	now := db.timestamp()
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ib := db.flavor.NewInsertBuilder()
	ib.InsertInto("entries").
		Cols("subscription_id", "title", "url", "author", "image_url", "description", "summary",
			"content", "published_at", "updated_date", "is_read", "is_favorite", "created_at", "updated_at").
		Values(entry.SubscriptionID, entry.Title, entry.URL, entry.Author, entry.ImageURL,
			entry.Description, entry.Summary, entry.Content, entry.PublishedAt.UTC(),
			utcPtr(entry.UpdatedDate), entry.IsRead, entry.IsFavorite, now, now)
	query, args := ib.Build()

	var id int64
	if err := tx.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
		return fmt.Errorf("create entry: %w", db.translate(err))
	}

	tags := lo.UniqBy(entry.Tags, func(t model.Tag) int64 { return t.ID })
	for _, tag := range tags {
		ib := db.flavor.NewInsertBuilder()
		ib.InsertInto("entry_tags").Cols("entry_id", "tag_id").Values(id, tag.ID)
		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query+" ON CONFLICT DO NOTHING", args...); err != nil {
			return fmt.Errorf("link tag %q: %w", tag.Title, db.translate(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit entry: %w", db.translate(err))
	}
	entry.ID = id
	entry.Tags = tags
	entry.CreatedAt, entry.UpdatedAt = now, now
	return nil
}

// GetEntry retrieves an entry with its tags.
func (db *DB) GetEntry(ctx context.Context, entryID int64) (*model.Entry, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select(entryColumns...).From("entries e").Where(sb.Equal("e.id", entryID))
	query, args := sb.Build()

	entry, err := scanEntry(db.conn.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, db.translate(err)
	}
	entries := []model.Entry{*entry}
	if err := db.loadTags(ctx, entries); err != nil {
		return nil, err
	}
	return &entries[0], nil
}

// ListEntries returns entries matching filter, newest first, with their tags.
func (db *DB) ListEntries(ctx context.Context, filter model.EntryFilter) ([]model.Entry, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select(entryColumns...).From("entries e")
	db.applyEntryFilter(sb, filter)
	sb.OrderBy("e.published_at DESC", "e.id DESC")
	if filter.Limit > 0 {
		sb.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		sb.Offset(filter.Offset)
	}

	entries, err := db.queryEntries(ctx, sb)
	if err != nil {
		return nil, err
	}
	if err := db.loadTags(ctx, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// CountEntries counts entries matching filter. Limit and offset are ignored.
func (db *DB) CountEntries(ctx context.Context, filter model.EntryFilter) (int, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select("COUNT(*)").From("entries e")
	db.applyEntryFilter(sb, filter)
	query, args := sb.Build()

	var n int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// AdjacentEntries returns the entries right before and after entry in
// ListEntries order among those matching filter. Either may be nil.
func (db *DB) AdjacentEntries(ctx context.Context, entry *model.Entry, filter model.EntryFilter) (newer, older *model.Entry, err error) {
	published := entry.PublishedAt.UTC()

	sb := db.flavor.NewSelectBuilder()
	sb.Select(entryColumns...).From("entries e")
	db.applyEntryFilter(sb, filter)
	sb.Where(sb.Or(
		sb.GreaterThan("e.published_at", published),
		sb.And(sb.Equal("e.published_at", published), sb.GreaterThan("e.id", entry.ID)),
	))
	sb.OrderBy("e.published_at ASC", "e.id ASC").Limit(1)
	if newer, err = db.firstEntry(ctx, sb); err != nil {
		return nil, nil, err
	}

	sb = db.flavor.NewSelectBuilder()
	sb.Select(entryColumns...).From("entries e")
	db.applyEntryFilter(sb, filter)
	sb.Where(sb.Or(
		sb.LessThan("e.published_at", published),
		sb.And(sb.Equal("e.published_at", published), sb.LessThan("e.id", entry.ID)),
	))
	sb.OrderBy("e.published_at DESC", "e.id DESC").Limit(1)
	if older, err = db.firstEntry(ctx, sb); err != nil {
		return nil, nil, err
	}
	return newer, older, nil
}

// SetEntryRead marks an entry read or unread.
func (db *DB) SetEntryRead(ctx context.Context, entryID int64, read bool) error {
	return db.setEntryFlag(ctx, entryID, "is_read", read)
}

// SetEntryFavorite adds or removes an entry from favorites.
func (db *DB) SetEntryFavorite(ctx context.Context, entryID int64, favorite bool) error {
	return db.setEntryFlag(ctx, entryID, "is_favorite", favorite)
}

func (db *DB) setEntryFlag(ctx context.Context, entryID int64, column string, value bool) error {
	ub := db.flavor.NewUpdateBuilder()
	ub.Update("entries").
		Set(ub.Assign(column, value), ub.Assign("updated_at", db.timestamp())).
		Where(ub.Equal("id", entryID))
	return db.execUpdate(ctx, ub)
}

func (db *DB) applyEntryFilter(sb *sqlbuilder.SelectBuilder, f model.EntryFilter) {
	if f.OwnerID != nil || f.FolderID != nil {
		sb.Join("subscriptions s", "s.id = e.subscription_id")
	}
	if f.OwnerID != nil {
		sb.Where(sb.Equal("s.owner_id", *f.OwnerID))
	}
	if f.FolderID != nil {
		sb.Where(sb.Equal("s.folder_id", *f.FolderID))
	}
	if f.SubscriptionID != nil {
		sb.Where(sb.Equal("e.subscription_id", *f.SubscriptionID))
	}
	if f.TagID != nil {
		sb.Where(fmt.Sprintf(
			"EXISTS (SELECT 1 FROM entry_tags et WHERE et.entry_id = e.id AND et.tag_id = %s)",
			sb.Var(*f.TagID),
		))
	}
	if f.IsRead != nil {
		sb.Where(sb.Equal("e.is_read", *f.IsRead))
	}
	if f.IsFavorite != nil {
		sb.Where(sb.Equal("e.is_favorite", *f.IsFavorite))
	}
	if f.PublishedFrom != nil {
		sb.Where(sb.GreaterEqualThan("e.published_at", f.PublishedFrom.UTC()))
	}
	if f.PublishedUntil != nil {
		sb.Where(sb.LessThan("e.published_at", f.PublishedUntil.UTC()))
	}
}

func (db *DB) queryEntries(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]model.Entry, error) {
	query, args := sb.Build()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (db *DB) firstEntry(ctx context.Context, sb *sqlbuilder.SelectBuilder) (*model.Entry, error) {
	entries, err := db.queryEntries(ctx, sb)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[0], nil
}

// loadTags attaches tags to entries in place. It must run after the entry rows are closed.
func (db *DB) loadTags(ctx context.Context, entries []model.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	ids := lo.Map(entries, func(e model.Entry, _ int) int64 { return e.ID })

	sb := db.flavor.NewSelectBuilder()
	sb.Select("et.entry_id", "t.id", "t.title").
		From("entry_tags et").
		Join("tags t", "t.id = et.tag_id").
		Where(sb.In("et.entry_id", lo.ToAnySlice(ids)...)).
		OrderBy("t.title")
	query, args := sb.Build()

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("load tags: %w", err)
	}
	defer rows.Close()

	byEntry := make(map[int64][]model.Tag, len(entries))
	for rows.Next() {
		var entryID int64
		var tag model.Tag
		if err := rows.Scan(&entryID, &tag.ID, &tag.Title); err != nil {
			return err
		}
		byEntry[entryID] = append(byEntry[entryID], tag)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i := range entries {
		entries[i].Tags = byEntry[entries[i].ID]
	}
	return nil
}
