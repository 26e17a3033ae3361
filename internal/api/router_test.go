// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/cache"
	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/models"
	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/store"
	syncpkg "github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/sync"
)

type nullRemote struct{}

func (nullRemote) CreateBookmark(context.Context, *models.Bookmark) models.RPCResult {
	return models.RPCSuccess(http.StatusOK)
}

func (nullRemote) UpdateBookmark(context.Context, string, models.BookmarkUpdate) models.RPCResult {
	return models.RPCSuccess(http.StatusOK)
}

func (nullRemote) DeleteBookmark(context.Context, string) models.RPCResult {
	return models.RPCSuccess(http.StatusOK)
}

func (nullRemote) CreateNote(context.Context, *models.Note) (string, models.RPCResult) {
	return "srv-1", models.RPCSuccess(http.StatusOK)
}

func (nullRemote) UpdateNote(context.Context, string, *models.Note) models.RPCResult {
	return models.RPCSuccess(http.StatusOK)
}

func (nullRemote) DeleteNote(context.Context, string) models.RPCResult {
	return models.RPCSuccess(http.StatusOK)
}

func (nullRemote) FetchBookmarks(context.Context, int) ([]models.RemoteBookmark, error) {
	return nil, nil
}

type fakeFetcher struct {
	calls   atomic.Int32
	dataset *models.ConferenceDataset
	err     error
}

func (f *fakeFetcher) FetchConferenceDataset(ctx context.Context, year int) (*models.ConferenceDataset, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.dataset, nil
}

func testServer(t *testing.T, fetcher DatasetFetcher) (*httptest.Server, *store.Store) {
	t.Helper()

	s, err := store.Open(store.Config{Path: t.TempDir(), CloseTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	q := store.NewQueue(s)
	engine := syncpkg.NewEngine(s, q, nullRemote{}, syncpkg.Config{Interval: time.Hour})
	engine.SetUser("u1")
	manager := syncpkg.NewManager(s, q, engine)
	cacheMgr := cache.NewManager(nil, cache.Config{Capacity: 16, SoftTTL: time.Hour, FetchTimeout: time.Second})

	h := NewHandler(manager, engine, cacheMgr, fetcher, s)
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv, s
}

func TestHealthAndReadiness(t *testing.T) {
	srv, s := testServer(t, &fakeFetcher{})

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("readyz status = %d", resp.StatusCode)
	}

	// A closed store flips readiness.
	if err := s.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}
	resp, err = http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz after close: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("readyz after close = %d, want 503", resp.StatusCode)
	}
}

func TestSyncTriggerAndStatus(t *testing.T) {
	srv, _ := testServer(t, &fakeFetcher{})

	resp, err := http.Post(srv.URL+"/api/v1/sync", "application/json", nil)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("trigger status = %d, want 202", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/v1/sync/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var status syncpkg.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.UserID != "u1" {
		t.Errorf("UserID = %q", status.UserID)
	}
}

func TestBookmarkWriteSurface(t *testing.T) {
	srv, _ := testServer(t, &fakeFetcher{})

	body, _ := json.Marshal(&models.Bookmark{
		Year:   2026,
		Slug:   "api-talk",
		Type:   models.BookmarkTypeEvent,
		Status: models.BookmarkStatusFavourited,
	})
	resp, err := http.Post(srv.URL+"/api/v1/bookmarks", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save status = %d", resp.StatusCode)
	}

	var saved models.Bookmark
	if err := json.NewDecoder(resp.Body).Decode(&saved); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if saved.ID != "2026_api-talk" {
		t.Errorf("ID = %q", saved.ID)
	}

	resp, err = http.Get(srv.URL + "/api/v1/bookmarks?year=2026")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer resp.Body.Close()

	var listing struct {
		Bookmarks []models.Bookmark `json:"bookmarks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listing.Bookmarks) != 1 {
		t.Fatalf("got %d bookmarks", len(listing.Bookmarks))
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/bookmarks/2026_api-talk", nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d", delResp.StatusCode)
	}
}

func TestDatasetEndpoint_CachesFetch(t *testing.T) {
	fetcher := &fakeFetcher{
		dataset: &models.ConferenceDataset{
			Conference: models.ConferenceMeta{Acronym: "fosdem-2026", Title: "FOSDEM 2026"},
			Events:     []models.ScheduleEvent{{ID: "1", Slug: "keynote", Title: "Opening"}},
		},
	}
	srv, _ := testServer(t, fetcher)

	for i := 0; i < 3; i++ {
		resp, err := http.Get(srv.URL + "/api/v1/datasets/2026")
		if err != nil {
			t.Fatalf("dataset: %v", err)
		}
		var ds models.ConferenceDataset
		if err := json.NewDecoder(resp.Body).Decode(&ds); err != nil {
			t.Fatalf("decode: %v", err)
		}
		resp.Body.Close()
		if ds.Conference.Acronym != "fosdem-2026" {
			t.Errorf("Acronym = %q", ds.Conference.Acronym)
		}
	}

	if fetcher.calls.Load() != 1 {
		t.Errorf("fetcher called %d times, want 1 (cache hit after first)", fetcher.calls.Load())
	}
}

func TestDatasetEndpoint_BadYear(t *testing.T) {
	srv, _ := testServer(t, &fakeFetcher{})

	resp, err := http.Get(srv.URL + "/api/v1/datasets/not-a-year")
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDatasetEndpoint_FetchFailureNoFallback(t *testing.T) {
	srv, _ := testServer(t, &fakeFetcher{err: errors.New("origin down")})

	resp, err := http.Get(srv.URL + "/api/v1/datasets/2026")
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}
