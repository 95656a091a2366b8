package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/bryan-buckman/skimmer/internal/model"
)

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(w, r)
	if !ok {
		return
	}
	mode, err := model.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := mode.Filter(s.now())
	filter.OwnerID = &owner
	for name, dst := range map[string]**int64{
		"subscription": &filter.SubscriptionID,
		"folder":       &filter.FolderID,
		"tag":          &filter.TagID,
	} {
		v, err := optionalInt(r, name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		*dst = v
	}

	total, err := s.store.CountEntries(r.Context(), filter)
	if err != nil {
		s.internalError(w, "count entries", err)
		return
	}
	unread := 0
	if filter.IsRead == nil || !*filter.IsRead {
		unreadFilter := filter
		unreadFilter.IsRead = new(bool)
		if unread, err = s.store.CountEntries(r.Context(), unreadFilter); err != nil {
			s.internalError(w, "count entries", err)
			return
		}
	}

	filter.Limit = pageParam(r, "limit", defaultPageSize)
	switch {
	case filter.Limit == 0:
		filter.Limit = defaultPageSize
	case filter.Limit > maxPageSize:
		filter.Limit = maxPageSize
	}
	filter.Offset = pageParam(r, "offset", 0)

	entries, err := s.store.ListEntries(r.Context(), filter)
	if err != nil {
		s.internalError(w, "list entries", err)
		return
	}
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, newEntryView(e))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"mode":    mode,
		"total":   total,
		"unread":  unread,
		"entries": views,
	})
}

// handleGetEntry marks the entry read and returns it with its neighbours in the
// owner's listing for the requested mode, limited to one subscription when
// the subscription parameter is given.
func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	mode, err := model.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	inFeed, err := optionalInt(r, "subscription")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := s.store.GetEntry(r.Context(), id)
	if err != nil {
		s.storeError(w, "get entry", err)
		return
	}
	if !entry.IsRead {
		if err := s.store.SetEntryRead(r.Context(), entry.ID, true); err != nil {
			s.storeError(w, "mark entry", err)
			return
		}
		entry.IsRead = true
	}
	sub, err := s.store.GetSubscription(r.Context(), entry.SubscriptionID)
	if err != nil {
		s.storeError(w, "get subscription", err)
		return
	}

	filter := mode.Filter(s.now())
	filter.OwnerID = &sub.OwnerID
	filter.SubscriptionID = inFeed
	newer, older, err := s.store.AdjacentEntries(r.Context(), entry, filter)
	if err != nil {
		s.internalError(w, "find adjacent entries", err)
		return
	}

	resp := map[string]interface{}{
		"entry":        newEntryView(*entry),
		"subscription": newSubscriptionView(*sub),
		"previous_id":  nil,
		"next_id":      nil,
	}
	if newer != nil {
		resp["previous_id"] = newer.ID
	}
	if older != nil {
		resp["next_id"] = older.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetRead(w http.ResponseWriter, r *http.Request) {
	s.setEntryFlag(w, r, "mark entry", s.store.SetEntryRead)
}

func (s *Server) handleSetFavorite(w http.ResponseWriter, r *http.Request) {
	s.setEntryFlag(w, r, "favorite entry", s.store.SetEntryFavorite)
}

func (s *Server) setEntryFlag(w http.ResponseWriter, r *http.Request, op string, set func(ctx context.Context, id int64, v bool) error) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Value *bool `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}
	if err := set(r.Context(), id, *req.Value); err != nil {
		s.storeError(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pageParam(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 0 {
		return def
	}
	return v
}
