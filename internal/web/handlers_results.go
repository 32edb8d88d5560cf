package web

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/loglens/internal/core"
	"github.com/JonMunkholm/loglens/internal/logging"
	"github.com/JonMunkholm/loglens/internal/metrics"
	"github.com/JonMunkholm/loglens/internal/web/templates"
)

// handleListResults returns every stored result in insertion order.
func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	results, err := s.deps.Store.List(r.Context())
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []core.NormalizedResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

// handleGetResult returns one stored result.
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	res, err := s.deps.Store.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleExportResult downloads the PDF summary of one result.
func (s *Server) handleExportResult(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	res, err := s.deps.Store.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	doc, err := s.deps.Exporter.Export(res)
	if err != nil {
		s.deps.Metrics.ObserveExport(metrics.OutcomeFailed)
		respondError(w, r, err, 0)
		return
	}
	s.deps.Metrics.ObserveExport(metrics.OutcomeOK)

	logging.FromContext(r.Context()).Info("result exported",
		"id", id,
		"pages", doc.Pages,
		"bytes", len(doc.PDF),
	)

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.PDF)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc.PDF); err != nil {
		logging.FromContext(r.Context()).Warn("export write failed", "id", id, "error", err)
	}
}

// handleResultsPage renders the HTML listing.
func (s *Server) handleResultsPage(w http.ResponseWriter, r *http.Request) {
	results, err := s.deps.Store.List(r.Context())
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	renderHTML(w, r, http.StatusOK, templates.ResultsPage(results))
}
