// Package database provides storage backends for the feed reader.
package database

import (
	"context"
	"errors"

	"github.com/bryan-buckman/skimmer/internal/model"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("already exists")
)

// Store defines the interface for database operations.
// Both SQLite and PostgreSQL implementations satisfy this interface.
type Store interface {
	Close() error

	// DatabaseType returns the name of the database backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// SupportsHighConcurrency returns true if the database can handle
	// many concurrent write operations (e.g., PostgreSQL).
	SupportsHighConcurrency() bool

	// Folder operations
	CreateFolder(ctx context.Context, ownerID int64, title string) (*model.Folder, error)
	GetOrCreateFolder(ctx context.Context, ownerID int64, title string) (*model.Folder, error)
	GetFolder(ctx context.Context, folderID int64) (*model.Folder, error)
	ListFolders(ctx context.Context, ownerID int64) ([]model.Folder, error)
	// DeleteFolder removes the folder and detaches its subscriptions.
	DeleteFolder(ctx context.Context, folderID int64) error

	// Subscription operations
	SubscriptionExists(ctx context.Context, ownerID int64, url string) (bool, error)
	// CreateSubscription inserts sub and sets its ID and timestamps.
	// It returns ErrConflict if the owner already holds the URL.
	CreateSubscription(ctx context.Context, sub *model.Subscription) error
	GetSubscription(ctx context.Context, subscriptionID int64) (*model.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	ListSubscriptionsByOwner(ctx context.Context, ownerID int64) ([]model.SubscriptionStats, error)
	ListSubscriptionsWithoutImage(ctx context.Context) ([]model.Subscription, error)
	UpdateSubscriptionImage(ctx context.Context, subscriptionID int64, imageURL string) error
	// UpdateSubscription returns ErrConflict if the owner already holds the new URL.
	UpdateSubscription(ctx context.Context, sub *model.Subscription) error
	DeleteSubscription(ctx context.Context, subscriptionID int64) error

	// Entry operations
	EntryExists(ctx context.Context, subscriptionID int64, url string) (bool, error)
	// CreateEntry inserts the entry and links its tags in one transaction.
	// It returns ErrConflict if the subscription already has an entry with the URL.
	CreateEntry(ctx context.Context, entry *model.Entry) error
	GetEntry(ctx context.Context, entryID int64) (*model.Entry, error)
	ListEntries(ctx context.Context, filter model.EntryFilter) ([]model.Entry, error)
	CountEntries(ctx context.Context, filter model.EntryFilter) (int, error)
	// AdjacentEntries returns the closest newer and older entries matching filter.
	AdjacentEntries(ctx context.Context, entry *model.Entry, filter model.EntryFilter) (newer, older *model.Entry, err error)
	SetEntryRead(ctx context.Context, entryID int64, read bool) error
	SetEntryFavorite(ctx context.Context, entryID int64, favorite bool) error

	// Tag operations
	FindTagByTitle(ctx context.Context, title string) (*model.Tag, error)
	// CreateTag returns ErrConflict if the title is taken.
	CreateTag(ctx context.Context, title string) (*model.Tag, error)
	ListTags(ctx context.Context) ([]model.TagStats, error)
}
