package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/bryan-buckman/skimmer/internal/model"
)

// storedTimeLayouts are the textual forms SQLite hands back for time values,
// including those computed by aggregates such as MAX().
var storedTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// nullTime scans nullable time columns from either backend.
type nullTime struct {
	Time  time.Time
	Valid bool
}

func (nt *nullTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		nt.Time, nt.Valid = time.Time{}, false
		return nil
	case time.Time:
		nt.Time, nt.Valid = v, true
		return nil
	case []byte:
		return nt.parse(string(v))
	case string:
		return nt.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into time", src)
	}
}

func (nt *nullTime) parse(s string) error {
	for _, layout := range storedTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			nt.Time, nt.Valid = t, true
			return nil
		}
	}
	return fmt.Errorf("cannot parse stored time %q", s)
}

func (nt nullTime) ptr() *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

var folderColumns = []string{"f.id", "f.owner_id", "f.title", "f.created_at", "f.updated_at"}

func scanFolder(row rowScanner) (*model.Folder, error) {
	var f model.Folder
	var created, updated nullTime
	if err := row.Scan(&f.ID, &f.OwnerID, &f.Title, &created, &updated); err != nil {
		return nil, err
	}
	f.CreatedAt, f.UpdatedAt = created.Time, updated.Time
	return &f, nil
}

var subscriptionColumns = []string{
	"s.id", "s.owner_id", "s.folder_id", "s.title", "s.url", "s.site_url", "s.image_url",
	"s.created_at", "s.updated_at",
}

func subscriptionDest(s *model.Subscription, folderID *sql.NullInt64, image *sql.NullString, created, updated *nullTime) []any {
	return []any{&s.ID, &s.OwnerID, folderID, &s.Title, &s.URL, &s.SiteURL, image, created, updated}
}

func finishSubscription(s *model.Subscription, folderID sql.NullInt64, image sql.NullString, created, updated nullTime) {
	if folderID.Valid {
		id := folderID.Int64
		s.FolderID = &id
	}
	s.ImageURL = stringPtr(image)
	s.CreatedAt, s.UpdatedAt = created.Time, updated.Time
}

func scanSubscription(row rowScanner) (*model.Subscription, error) {
	var s model.Subscription
	var folderID sql.NullInt64
	var image sql.NullString
	var created, updated nullTime
	if err := row.Scan(subscriptionDest(&s, &folderID, &image, &created, &updated)...); err != nil {
		return nil, err
	}
	finishSubscription(&s, folderID, image, created, updated)
	return &s, nil
}

var entryColumns = []string{
	"e.id", "e.subscription_id", "e.title", "e.url", "e.author", "e.image_url", "e.description",
	"e.summary", "e.content", "e.published_at", "e.updated_date", "e.is_read", "e.is_favorite",
	"e.created_at", "e.updated_at",
}

func scanEntry(row rowScanner) (*model.Entry, error) {
	var e model.Entry
	var author, image, description, summary, content sql.NullString
	var published, updatedDate, created, updated nullTime
	err := row.Scan(&e.ID, &e.SubscriptionID, &e.Title, &e.URL, &author, &image, &description,
		&summary, &content, &published, &updatedDate, &e.IsRead, &e.IsFavorite, &created, &updated)
	if err != nil {
		return nil, err
	}
	e.Author = stringPtr(author)
	e.ImageURL = stringPtr(image)
	e.Description = stringPtr(description)
	e.Summary = stringPtr(summary)
	e.Content = stringPtr(content)
	e.PublishedAt = published.Time
	e.UpdatedDate = updatedDate.ptr()
	e.CreatedAt, e.UpdatedAt = created.Time, updated.Time
	return &e, nil
}
