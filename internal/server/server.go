// Package server provides the JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/bryan-buckman/skimmer/internal/database"
	"github.com/bryan-buckman/skimmer/internal/model"
	"github.com/bryan-buckman/skimmer/internal/rss"
	"github.com/bryan-buckman/skimmer/internal/subscription"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	refreshTimeout  = 5 * time.Minute
)

// Server is the main HTTP server.
type Server struct {
	store   database.Store
	subs    *subscription.Manager
	updater *rss.Updater
	poller  *rss.Poller
	router  chi.Router
	now     func() time.Time

	mu   sync.Mutex
	http *http.Server
}

// New creates a server. poller may be nil when updates are scheduled elsewhere.
func New(store database.Store, subs *subscription.Manager, updater *rss.Updater, poller *rss.Poller) *Server {
	s := &Server{
		store:   store,
		subs:    subs,
		updater: updater,
		poller:  poller,
		now:     time.Now,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/subscriptions", s.handleListSubscriptions)
		r.Post("/subscriptions", s.handleCreateSubscription)
		r.Patch("/subscriptions/{id}", s.handleUpdateSubscription)
		r.Delete("/subscriptions/{id}", s.handleDeleteSubscription)
		r.Post("/subscriptions/{id}/refresh", s.handleRefreshSubscription)
		r.Post("/refresh", s.handleRefresh)

		r.Get("/entries", s.handleListEntries)
		r.Get("/entries/{id}", s.handleGetEntry)
		r.Post("/entries/{id}/read", s.handleSetRead)
		r.Post("/entries/{id}/favorite", s.handleSetFavorite)

		r.Get("/folders", s.handleListFolders)
		r.Post("/folders", s.handleCreateFolder)
		r.Delete("/folders/{id}", s.handleDeleteFolder)

		r.Get("/tags", s.handleListTags)

		r.Post("/import-opml", s.handleImportOPML)
		r.Get("/export-opml", s.handleExportOPML)
	})

	s.router = r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds addr, starts the poller, if any, and serves until Shutdown.
// The poller is not left running when serving fails.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	if s.poller != nil {
		s.poller.Start()
	}
	log.WithField("addr", ln.Addr().String()).Info("Server starting")
	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	if s.poller != nil {
		s.poller.Stop()
	}
	return err
}

// Shutdown stops accepting requests and stops the poller.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	if s.poller != nil {
		s.poller.Stop()
	}
	return err
}

// --- Subscription handlers ---

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(w, r)
	if !ok {
		return
	}
	stats, err := s.store.ListSubscriptionsByOwner(r.Context(), owner)
	if err != nil {
		s.internalError(w, "list subscriptions", err)
		return
	}
	views := make([]subscriptionView, 0, len(stats))
	for _, st := range stats {
		views = append(views, newSubscriptionStatsView(st))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"subscriptions": views})
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerID  int64  `json:"owner_id"`
		URL      string `json:"url"`
		FolderID *int64 `json:"folder_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" || req.OwnerID <= 0 {
		writeError(w, http.StatusBadRequest, "owner_id and url are required")
		return
	}
	if !s.checkFolder(w, r, req.OwnerID, req.FolderID) {
		return
	}

	sub, err := s.subs.SubscribeToFolder(r.Context(), req.OwnerID, req.URL, req.FolderID)
	switch {
	case errors.Is(err, subscription.ErrAlreadySubscribed):
		writeError(w, http.StatusConflict, fmt.Sprintf("already subscribed to %s", req.URL))
	case errors.Is(err, subscription.ErrCannotSubscribe):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		s.internalError(w, "subscribe", err)
	default:
		writeJSON(w, http.StatusCreated, newSubscriptionView(*sub))
	}
}

// handleUpdateSubscription edits title, url, site_url, image_url and folder_id.
// Absent fields are left alone; a null folder_id detaches the subscription and
// an empty image_url clears the image.
func (s *Server) handleUpdateSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Title    *string         `json:"title"`
		URL      *string         `json:"url"`
		SiteURL  *string         `json:"site_url"`
		ImageURL *string         `json:"image_url"`
		FolderID json.RawMessage `json:"folder_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := s.store.GetSubscription(r.Context(), id)
	if err != nil {
		s.storeError(w, "get subscription", err)
		return
	}

	if req.Title != nil {
		sub.Title = strings.TrimSpace(*req.Title)
	}
	if req.URL != nil {
		sub.URL = strings.TrimSpace(*req.URL)
	}
	if sub.Title == "" || sub.URL == "" {
		writeError(w, http.StatusBadRequest, "title and url cannot be empty")
		return
	}
	if req.SiteURL != nil {
		sub.SiteURL = strings.TrimSpace(*req.SiteURL)
	}
	if req.ImageURL != nil {
		sub.ImageURL = model.StringPtr(strings.TrimSpace(*req.ImageURL))
	}
	if len(req.FolderID) > 0 {
		if string(req.FolderID) == "null" {
			sub.FolderID = nil
		} else {
			var folderID int64
			if err := json.Unmarshal(req.FolderID, &folderID); err != nil {
				writeError(w, http.StatusBadRequest, "invalid folder_id")
				return
			}
			sub.FolderID = &folderID
		}
	}
	if !s.checkFolder(w, r, sub.OwnerID, sub.FolderID) {
		return
	}

	err = s.store.UpdateSubscription(r.Context(), sub)
	switch {
	case errors.Is(err, database.ErrConflict):
		writeError(w, http.StatusConflict, fmt.Sprintf("already subscribed to %s", sub.URL))
	case err != nil:
		s.storeError(w, "update subscription", err)
	default:
		writeJSON(w, http.StatusOK, newSubscriptionView(*sub))
	}
}

// checkFolder answers 422 unless folderID is nil or names a folder of ownerID.
func (s *Server) checkFolder(w http.ResponseWriter, r *http.Request, ownerID int64, folderID *int64) bool {
	if folderID == nil {
		return true
	}
	folder, err := s.store.GetFolder(r.Context(), *folderID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("unknown folder %d", *folderID))
		return false
	case err != nil:
		s.internalError(w, "get folder", err)
		return false
	case folder.OwnerID != ownerID:
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("folder %d belongs to another owner", *folderID))
		return false
	}
	return true
}

func (s *Server) handleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteSubscription(r.Context(), id); err != nil {
		s.storeError(w, "delete subscription", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefreshSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	sub, err := s.store.GetSubscription(r.Context(), id)
	if err != nil {
		s.storeError(w, "get subscription", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), refreshTimeout)
	defer cancel()
	n := s.updater.UpdateFeed(ctx, *sub)
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "new_entries": n})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), refreshTimeout)
	defer cancel()

	summary := s.updater.UpdateAll(ctx)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"feeds":       summary.Feeds,
		"new_entries": summary.NewEntries,
	})
}

// --- Folder and tag handlers ---

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(w, r)
	if !ok {
		return
	}
	folders, err := s.store.ListFolders(r.Context(), owner)
	if err != nil {
		s.internalError(w, "list folders", err)
		return
	}
	views := make([]folderView, 0, len(folders))
	for _, f := range folders {
		views = append(views, newFolderView(f))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"folders": views})
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerID int64  `json:"owner_id"`
		Title   string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		writeError(w, http.StatusBadRequest, "owner_id and title are required")
		return
	}
	folder, err := s.store.CreateFolder(r.Context(), req.OwnerID, req.Title)
	if err != nil {
		s.internalError(w, "create folder", err)
		return
	}
	writeJSON(w, http.StatusCreated, newFolderView(*folder))
}

func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteFolder(r.Context(), id); err != nil {
		s.storeError(w, "delete folder", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.store.ListTags(r.Context())
	if err != nil {
		s.internalError(w, "list tags", err)
		return
	}
	views := make([]tagView, 0, len(tags))
	for _, t := range tags {
		views = append(views, tagView{ID: t.ID, Title: t.Title, EntryCount: t.EntryCount})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tags": views})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Cannot write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	log.WithError(err).Errorf("Failed to %s", op)
	writeError(w, http.StatusInternalServerError, "failed to "+op)
}

// storeError answers 404 for missing rows and 500 otherwise.
func (s *Server) storeError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.internalError(w, op, err)
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func ownerParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	owner, err := strconv.ParseInt(r.URL.Query().Get("owner"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "owner is required")
		return 0, false
	}
	return owner, true
}

// optionalInt parses the named query parameter. Absent parameters give nil.
func optionalInt(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q", name, raw)
	}
	return &v, nil
}
