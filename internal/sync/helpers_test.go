// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

package sync

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/models"
	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/store"
)

func openTestStore(t *testing.T) (*store.Store, *store.Queue) {
	t.Helper()

	s, err := store.Open(store.Config{
		Path:         t.TempDir(),
		CloseTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return s, store.NewQueue(s)
}

// call records one RPC the mock received.
type call struct {
	method   string
	serverID string
	localID  string
}

// mockRemote implements RemoteClient with scriptable per-method results.
type mockRemote struct {
	mu    sync.Mutex
	calls []call

	// results maps method name to a queue of results; when the queue for a
	// method is exhausted the last result repeats. Empty means success.
	results map[string][]models.RPCResult

	noteServerID string
	bookmarks    []models.RemoteBookmark
	fetchErr     error
}

func newMockRemote() *mockRemote {
	return &mockRemote{
		results:      make(map[string][]models.RPCResult),
		noteServerID: "note-srv-1",
	}
}

func (m *mockRemote) script(method string, results ...models.RPCResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[method] = append(m.results[method], results...)
}

func (m *mockRemote) next(method string, c call) models.RPCResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)

	queue := m.results[method]
	if len(queue) == 0 {
		return models.RPCSuccess(http.StatusOK)
	}
	res := queue[0]
	if len(queue) > 1 {
		m.results[method] = queue[1:]
	}
	return res
}

func (m *mockRemote) callCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.method == method {
			n++
		}
	}
	return n
}

func (m *mockRemote) CreateBookmark(_ context.Context, b *models.Bookmark) models.RPCResult {
	return m.next("CreateBookmark", call{method: "CreateBookmark", localID: b.ID})
}

func (m *mockRemote) UpdateBookmark(_ context.Context, serverID string, _ models.BookmarkUpdate) models.RPCResult {
	return m.next("UpdateBookmark", call{method: "UpdateBookmark", serverID: serverID})
}

func (m *mockRemote) DeleteBookmark(_ context.Context, serverID string) models.RPCResult {
	return m.next("DeleteBookmark", call{method: "DeleteBookmark", serverID: serverID})
}

func (m *mockRemote) CreateNote(_ context.Context, n *models.Note) (string, models.RPCResult) {
	res := m.next("CreateNote", call{method: "CreateNote", localID: n.ID})
	if !res.OK {
		return "", res
	}
	return m.noteServerID, res
}

func (m *mockRemote) UpdateNote(_ context.Context, serverID string, _ *models.Note) models.RPCResult {
	return m.next("UpdateNote", call{method: "UpdateNote", serverID: serverID})
}

func (m *mockRemote) DeleteNote(_ context.Context, serverID string) models.RPCResult {
	return m.next("DeleteNote", call{method: "DeleteNote", serverID: serverID})
}

func (m *mockRemote) FetchBookmarks(_ context.Context, _ int) ([]models.RemoteBookmark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call{method: "FetchBookmarks"})
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.bookmarks, nil
}

func testEngine(t *testing.T, remote RemoteClient) (*Engine, *store.Store, *store.Queue) {
	t.Helper()
	s, q := openTestStore(t)
	e := NewEngine(s, q, remote, Config{
		Interval:      time.Hour,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	})
	e.SetUser("u1")
	return e, s, q
}

func testBookmark(year int, slug string) *models.Bookmark {
	now := time.Now().UTC()
	return &models.Bookmark{
		ID:        models.LocalBookmarkID(year, slug),
		Year:      year,
		Slug:      slug,
		Type:      models.BookmarkTypeEvent,
		Status:    models.BookmarkStatusFavourited,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func failure(status int) models.RPCResult {
	return models.RPCFailure(status, http.StatusText(status))
}

func networkFailure() models.RPCResult {
	return models.RPCResult{OK: false, Kind: models.FailureUnknown, Message: "connection refused"}
}
