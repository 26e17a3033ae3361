// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

// Package api exposes the daemon's HTTP surface: health and readiness,
// Prometheus metrics, the sync status/trigger endpoints, and cached dataset
// reads. The write endpoints are thin wrappers over the sync manager's
// two-phase mutations; they return as soon as the local commit is durable.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/cache"
	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/logging"
	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/models"
	syncpkg "github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/sync"
)

var errInvalidYear = errors.New("invalid year")

// DatasetFetcher loads the authoritative conference dataset for a year.
type DatasetFetcher interface {
	FetchConferenceDataset(ctx context.Context, year int) (*models.ConferenceDataset, error)
}

// Readiness reports whether the daemon's storage is usable.
type Readiness interface {
	Ready() bool
}

// Handler builds the daemon's HTTP routes.
type Handler struct {
	manager *syncpkg.Manager
	engine  *syncpkg.Engine
	cache   *cache.Manager
	fetcher DatasetFetcher
	ready   Readiness
}

// NewHandler creates the HTTP handler over the sync core.
func NewHandler(manager *syncpkg.Manager, engine *syncpkg.Engine, cacheMgr *cache.Manager, fetcher DatasetFetcher, ready Readiness) *Handler {
	return &Handler{
		manager: manager,
		engine:  engine,
		cache:   cacheMgr,
		fetcher: fetcher,
		ready:   ready,
	}
}

// Router assembles the chi route tree.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.handleHealth)
	r.Get("/readyz", h.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sync", h.handleSyncTrigger)
		r.Get("/sync/status", h.handleSyncStatus)

		r.Get("/datasets/{year}", h.handleDataset)

		r.Get("/bookmarks", h.handleListBookmarks)
		r.Post("/bookmarks", h.handleSaveBookmark)
		r.Delete("/bookmarks/{id}", h.handleRemoveBookmark)

		r.Get("/notes", h.handleListNotes)
		r.Post("/notes", h.handleSaveNote)
		r.Delete("/notes/{id}", h.handleRemoveNote)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil && !h.ready.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleSyncTrigger is the "background sync requested" surface: it nudges the
// engine and returns immediately, it never waits for the drain.
func (h *Handler) handleSyncTrigger(w http.ResponseWriter, r *http.Request) {
	h.engine.NotifyOnline()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync requested"})
}

func (h *Handler) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.manager.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleDataset(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year <= 0 {
		writeError(w, http.StatusBadRequest, errInvalidYear)
		return
	}

	data, err := h.cache.GetOrFetch(r.Context(), cache.DatasetKey(year), func(ctx context.Context) ([]byte, error) {
		ds, err := h.fetcher.FetchConferenceDataset(ctx, year)
		if err != nil {
			return nil, err
		}
		return json.Marshal(ds)
	})
	if err != nil {
		logging.Warn().Err(err).Int("year", year).Msg("Dataset fetch failed with no cached fallback")
		writeError(w, http.StatusBadGateway, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) handleListBookmarks(w http.ResponseWriter, r *http.Request) {
	year := queryYear(r)
	bookmarks, err := h.manager.Bookmarks(r.Context(), year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bookmarks": bookmarks})
}

func (h *Handler) handleSaveBookmark(w http.ResponseWriter, r *http.Request) {
	var b models.Bookmark
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	saved, err := h.manager.SaveBookmark(r.Context(), &b)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) handleRemoveBookmark(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.RemoveBookmark(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.manager.Notes(r.Context(), queryYear(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notes": notes})
}

func (h *Handler) handleSaveNote(w http.ResponseWriter, r *http.Request) {
	var n models.Note
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	saved, err := h.manager.SaveNote(r.Context(), &n)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) handleRemoveNote(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.RemoveNote(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func queryYear(r *http.Request) int {
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil || year < 0 {
		return 0
	}
	return year
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
