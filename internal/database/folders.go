package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bryan-buckman/skimmer/internal/model"
)

// CreateFolder inserts a folder for the owner.
func (db *DB) CreateFolder(ctx context.Context, ownerID int64, title string) (*model.Folder, error) {
	now := db.timestamp()
	ib := db.flavor.NewInsertBuilder()
	ib.InsertInto("folders").
		Cols("owner_id", "title", "created_at", "updated_at").
		Values(ownerID, title, now, now)
	query, args := ib.Build()

	f := &model.Folder{OwnerID: ownerID, Title: title, CreatedAt: now, UpdatedAt: now}
	if err := db.conn.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&f.ID); err != nil {
		return nil, fmt.Errorf("create folder: %w", db.translate(err))
	}
	return f, nil
}

// GetOrCreateFolder returns the owner's folder with the given title, creating it when missing.
func (db *DB) GetOrCreateFolder(ctx context.Context, ownerID int64, title string) (*model.Folder, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select(folderColumns...).
		From("folders f").
		Where(sb.Equal("f.owner_id", ownerID), sb.Equal("f.title", title)).
		OrderBy("f.id").
		Limit(1)
	query, args := sb.Build()

	f, err := scanFolder(db.conn.QueryRowContext(ctx, query, args...))
	if err == nil {
		return f, nil
	}
	if err = db.translate(err); !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get folder: %w", err)
	}
	return db.CreateFolder(ctx, ownerID, title)
}

// GetFolder retrieves a folder by ID.
func (db *DB) GetFolder(ctx context.Context, folderID int64) (*model.Folder, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select(folderColumns...).From("folders f").Where(sb.Equal("f.id", folderID))
	query, args := sb.Build()

	f, err := scanFolder(db.conn.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, db.translate(err)
	}
	return f, nil
}

// ListFolders returns the owner's folders ordered by title.
func (db *DB) ListFolders(ctx context.Context, ownerID int64) ([]model.Folder, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select(folderColumns...).
		From("folders f").
		Where(sb.Equal("f.owner_id", ownerID)).
		OrderBy("f.title", "f.id")
	query, args := sb.Build()

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var folders []model.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		folders = append(folders, *f)
	}
	return folders, rows.Err()
}

// DeleteFolder removes a folder. Its subscriptions are kept and detached.
func (db *DB) DeleteFolder(ctx context.Context, folderID int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ub := db.flavor.NewUpdateBuilder()
	ub.Update("subscriptions").
		Set(ub.Assign("folder_id", nil), ub.Assign("updated_at", db.timestamp())).
		Where(ub.Equal("folder_id", folderID))
	query, args := ub.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("detach subscriptions: %w", err)
	}

	dlb := db.flavor.NewDeleteBuilder()
	dlb.DeleteFrom("folders").Where(dlb.Equal("id", folderID))
	query, args = dlb.Build()
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

// expectAffected returns ErrNotFound when a write touched no rows.
func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
