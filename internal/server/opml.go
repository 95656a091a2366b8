package server

import (
	"fmt"
	"net/http"
)

func (s *Server) handleImportOPML(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(w, r)
	if !ok {
		return
	}
	file, _, err := r.FormFile("opml")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	result, total, err := s.subs.ImportOPML(r.Context(), owner, file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse OPML: %v", err))
		return
	}

	failed := make(map[string]string, len(result.Failed))
	for url, err := range result.Failed {
		failed[url] = err.Error()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"total":    total,
		"imported": len(result.Created),
		"skipped":  result.Skipped,
		"failed":   failed,
	})
}

func (s *Server) handleExportOPML(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(w, r)
	if !ok {
		return
	}
	data, err := s.subs.ExportOPML(r.Context(), owner)
	if err != nil {
		s.internalError(w, "export subscriptions", err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", "attachment; filename=skimmer-feeds.opml")
	w.Write(data)
}
