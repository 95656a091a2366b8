// Package model defines shared data structures.
package model

import "time"

// Folder is a user-owned grouping of subscriptions.
type Folder struct {
	ID        int64
	OwnerID   int64
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subscription binds one owner to one feed URL.
type Subscription struct {
	ID        int64
	OwnerID   int64
	FolderID  *int64 // nullable if not in a folder
	Title     string
	URL       string // feed URL, unique per owner
	SiteURL   string
	ImageURL  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SubscriptionStats is a subscription annotated with entry counters for sidebar rendering.
type SubscriptionStats struct {
	Subscription
	UnreadCount     int
	TotalCount      int
	LatestEntryDate *time.Time
}

// Tag is a normalized label shared across all subscriptions.
type Tag struct {
	ID    int64
	Title string
}

// TagStats is a tag with the number of entries referencing it.
type TagStats struct {
	Tag
	EntryCount int
}

// Entry is one article ingested from a subscription's feed.
type Entry struct {
	ID             int64
	SubscriptionID int64
	Title          string
	URL            string
	Author         *string
	ImageURL       *string
	Description    *string
	Summary        *string
	Content        *string
	PublishedAt    time.Time // never zero once stored
	UpdatedDate    *time.Time
	IsRead         bool
	IsFavorite     bool
	Tags           []Tag
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EntryFilter narrows entry listings. Nil fields are not applied.
type EntryFilter struct {
	OwnerID        *int64
	SubscriptionID *int64
	FolderID       *int64
	TagID          *int64
	IsRead         *bool
	IsFavorite     *bool
	PublishedFrom  *time.Time // inclusive
	PublishedUntil *time.Time // exclusive
	Limit          int
	Offset         int
}

// StringPtr returns nil for an empty string and a pointer to s otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences p, returning "" for nil.
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
