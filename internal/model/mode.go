package model

import (
	"fmt"
	"time"
)

// Mode is a Smart Feed: a named filter over a user's entries.
type Mode string

// Smart Feed names.
const (
	ModeAll       Mode = "all"
	ModeToday     Mode = "today"
	ModeUnread    Mode = "unread"
	ModeRead      Mode = "read"
	ModeFavorites Mode = "favorites"
)

// Modes lists every Smart Feed in display order.
var Modes = []Mode{ModeAll, ModeToday, ModeUnread, ModeRead, ModeFavorites}

// ParseMode validates a mode name. An empty name selects ModeAll.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeAll, nil
	}
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("incorrect mode %q, must be one of %v", s, Modes)
}

// dayBounds returns the start of now's calendar day and the start of the next one,
// both in now's location.
func dayBounds(now time.Time) (time.Time, time.Time) {
	y, m, d := now.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return start, start.AddDate(0, 0, 1)
}

// Match returns a predicate selecting the entries that belong to the mode,
// evaluated against the reference time now.
func (m Mode) Match(now time.Time) func(Entry) bool {
	switch m {
	case ModeToday:
		start, end := dayBounds(now)
		return func(e Entry) bool {
			return !e.PublishedAt.Before(start) && e.PublishedAt.Before(end)
		}
	case ModeUnread:
		return func(e Entry) bool { return !e.IsRead }
	case ModeRead:
		return func(e Entry) bool { return e.IsRead }
	case ModeFavorites:
		return func(e Entry) bool { return e.IsFavorite }
	default:
		return func(Entry) bool { return true }
	}
}

// Filter translates the mode into a storage filter equivalent to Match.
func (m Mode) Filter(now time.Time) EntryFilter {
	var f EntryFilter
	switch m {
	case ModeToday:
		start, end := dayBounds(now)
		f.PublishedFrom = &start
		f.PublishedUntil = &end
	case ModeUnread:
		f.IsRead = boolPtr(false)
	case ModeRead:
		f.IsRead = boolPtr(true)
	case ModeFavorites:
		f.IsFavorite = boolPtr(true)
	}
	return f
}

func boolPtr(b bool) *bool { return &b }
