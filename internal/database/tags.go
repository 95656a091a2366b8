package database

import (
	"context"
	"fmt"

	sqlbuilder "github.com/huandu/go-sqlbuilder"

	"github.com/bryan-buckman/skimmer/internal/model"
)

// FindTagByTitle looks up a tag by its normalized title.
func (db *DB) FindTagByTitle(ctx context.Context, title string) (*model.Tag, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select("id", "title").From("tags").Where(sb.Equal("title", title))
	query, args := sb.Build()

	var tag model.Tag
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&tag.ID, &tag.Title); err != nil {
		return nil, db.translate(err)
	}
	return &tag, nil
}

// CreateTag inserts a tag. A concurrent insert of the same title yields ErrConflict.
func (db *DB) CreateTag(ctx context.Context, title string) (*model.Tag, error) {
	ib := db.flavor.NewInsertBuilder()
	ib.InsertInto("tags").Cols("title").Values(title)
	query, args := ib.Build()

	tag := &model.Tag{Title: title}
	if err := db.conn.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&tag.ID); err != nil {
		return nil, fmt.Errorf("create tag: %w", db.translate(err))
	}
	return tag, nil
}

// ListTags returns every tag with its entry count, most used first.
func (db *DB) ListTags(ctx context.Context) ([]model.TagStats, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select("t.id", "t.title", sb.As("COUNT(et.entry_id)", "entry_count")).
		From("tags t").
		JoinWithOption(sqlbuilder.LeftJoin, "entry_tags et", "et.tag_id = t.id").
		GroupBy("t.id", "t.title").
		OrderBy("entry_count DESC", "t.title")
	query, args := sb.Build()

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []model.TagStats
	for rows.Next() {
		var ts model.TagStats
		if err := rows.Scan(&ts.ID, &ts.Title, &ts.EntryCount); err != nil {
			return nil, err
		}
		tags = append(tags, ts)
	}
	return tags, rows.Err()
}
