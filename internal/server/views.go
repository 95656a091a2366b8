package server

import (
	"time"

	"github.com/samber/lo"

	"github.com/bryan-buckman/skimmer/internal/model"
)

type subscriptionView struct {
	ID              int64      `json:"id"`
	OwnerID         int64      `json:"owner_id"`
	FolderID        *int64     `json:"folder_id"`
	Title           string     `json:"title"`
	URL             string     `json:"url"`
	SiteURL         string     `json:"site_url"`
	ImageURL        *string    `json:"image_url"`
	UnreadCount     int        `json:"unread_count"`
	TotalCount      int        `json:"total_count"`
	LatestEntryDate *time.Time `json:"latest_entry_date,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func newSubscriptionView(s model.Subscription) subscriptionView {
	return subscriptionView{
		ID:        s.ID,
		OwnerID:   s.OwnerID,
		FolderID:  s.FolderID,
		Title:     s.Title,
		URL:       s.URL,
		SiteURL:   s.SiteURL,
		ImageURL:  s.ImageURL,
		CreatedAt: s.CreatedAt,
	}
}

func newSubscriptionStatsView(s model.SubscriptionStats) subscriptionView {
	v := newSubscriptionView(s.Subscription)
	v.UnreadCount = s.UnreadCount
	v.TotalCount = s.TotalCount
	v.LatestEntryDate = s.LatestEntryDate
	return v
}

type tagView struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	EntryCount int    `json:"entry_count,omitempty"`
}

type entryView struct {
	ID             int64      `json:"id"`
	SubscriptionID int64      `json:"subscription_id"`
	Title          string     `json:"title"`
	URL            string     `json:"url"`
	Author         *string    `json:"author"`
	ImageURL       *string    `json:"image_url"`
	Description    *string    `json:"description"`
	Summary        *string    `json:"summary"`
	Content        *string    `json:"content"`
	PublishedAt    time.Time  `json:"published_at"`
	UpdatedDate    *time.Time `json:"updated_date"`
	IsRead         bool       `json:"is_read"`
	IsFavorite     bool       `json:"is_favorite"`
	Tags           []tagView  `json:"tags"`
}

func newEntryView(e model.Entry) entryView {
	return entryView{
		ID:             e.ID,
		SubscriptionID: e.SubscriptionID,
		Title:          e.Title,
		URL:            e.URL,
		Author:         e.Author,
		ImageURL:       e.ImageURL,
		Description:    e.Description,
		Summary:        e.Summary,
		Content:        e.Content,
		PublishedAt:    e.PublishedAt,
		UpdatedDate:    e.UpdatedDate,
		IsRead:         e.IsRead,
		IsFavorite:     e.IsFavorite,
		Tags: lo.Map(e.Tags, func(t model.Tag, _ int) tagView {
			return tagView{ID: t.ID, Title: t.Title}
		}),
	}
}

type folderView struct {
	ID      int64  `json:"id"`
	OwnerID int64  `json:"owner_id"`
	Title   string `json:"title"`
}

func newFolderView(f model.Folder) folderView {
	return folderView{ID: f.ID, OwnerID: f.OwnerID, Title: f.Title}
}
