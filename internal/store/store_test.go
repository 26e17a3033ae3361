// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/models"
)

// openTestStore creates a store on a throwaway directory.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: t.TempDir(), CloseTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})
	return s
}

func testBookmark(year int, slug string) *models.Bookmark {
	return &models.Bookmark{
		ID:     models.LocalBookmarkID(year, slug),
		Year:   year,
		Slug:   slug,
		Type:   models.BookmarkTypeEvent,
		Status: models.BookmarkStatusFavourited,
	}
}

func TestStore_PutGetBookmark(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	b := testBookmark(2024, "event-1")
	if _, err := s.PutBookmark(ctx, b); err != nil {
		t.Fatalf("PutBookmark failed: %v", err)
	}
	if b.CreatedAt.IsZero() || b.UpdatedAt.IsZero() {
		t.Error("Expected timestamps to be stamped on put")
	}

	got, err := s.GetBookmark(ctx, "2024_event-1")
	if err != nil {
		t.Fatalf("GetBookmark failed: %v", err)
	}
	if got.Slug != "event-1" || got.Status != models.BookmarkStatusFavourited {
		t.Errorf("Unexpected bookmark: %+v", got)
	}
}

func TestStore_GetBookmark_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetBookmark(context.Background(), "2024_missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStore_PutBookmark_Invalid(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		bookmark *models.Bookmark
	}{
		{"missing slug", &models.Bookmark{ID: "2024_", Year: 2024, Type: models.BookmarkTypeEvent, Status: models.BookmarkStatusFavourited}},
		{"zero year", &models.Bookmark{ID: "0_x", Slug: "x", Type: models.BookmarkTypeEvent, Status: models.BookmarkStatusFavourited}},
		{"bad type", &models.Bookmark{ID: "2024_x", Year: 2024, Slug: "x", Type: "talk", Status: models.BookmarkStatusFavourited}},
		{"id mismatch", &models.Bookmark{ID: "2023_x", Year: 2024, Slug: "x", Type: models.BookmarkTypeEvent, Status: models.BookmarkStatusFavourited}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.PutBookmark(ctx, tt.bookmark); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestStore_DeleteBookmark(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.PutBookmark(ctx, testBookmark(2024, "event-1")); err != nil {
		t.Fatalf("PutBookmark failed: %v", err)
	}

	existed, err := s.DeleteBookmark(ctx, "2024_event-1")
	if err != nil {
		t.Fatalf("DeleteBookmark failed: %v", err)
	}
	if !existed {
		t.Error("Expected delete to report existing record")
	}

	existed, err = s.DeleteBookmark(ctx, "2024_event-1")
	if err != nil {
		t.Fatalf("Second DeleteBookmark failed: %v", err)
	}
	if existed {
		t.Error("Expected second delete to report missing record")
	}
}

func TestStore_ListBookmarks_YearFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, b := range []*models.Bookmark{
		testBookmark(2024, "event-1"),
		testBookmark(2024, "event-2"),
		testBookmark(2025, "event-3"),
	} {
		if _, err := s.PutBookmark(ctx, b); err != nil {
			t.Fatalf("PutBookmark failed: %v", err)
		}
	}

	got2024, err := s.ListBookmarks(ctx, 2024)
	if err != nil {
		t.Fatalf("ListBookmarks failed: %v", err)
	}
	if len(got2024) != 2 {
		t.Errorf("Expected 2 bookmarks for 2024, got %d", len(got2024))
	}

	all, err := s.ListBookmarks(ctx, 0)
	if err != nil {
		t.Fatalf("ListBookmarks(all) failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 bookmarks total, got %d", len(all))
	}
}

func TestStore_ListBookmarks_SkipsCorruptRecords(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.PutBookmark(ctx, testBookmark(2024, "event-1")); err != nil {
		t.Fatalf("PutBookmark failed: %v", err)
	}

	// Plant a record that is not valid JSON under the bookmark prefix.
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixBookmark+"2024_corrupt"), []byte("{not json"))
	}); err != nil {
		t.Fatalf("Failed to plant corrupt record: %v", err)
	}
	// And a legacy-shaped record that parses but fails validation.
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixBookmark+"2024_legacy"), []byte(`{"id":"2024_legacy","slug":"legacy"}`))
	}); err != nil {
		t.Fatalf("Failed to plant legacy record: %v", err)
	}

	got, err := s.ListBookmarks(ctx, 2024)
	if err != nil {
		t.Fatalf("ListBookmarks should not fail on corrupt records: %v", err)
	}
	if len(got) != 1 || got[0].Slug != "event-1" {
		t.Errorf("Expected only the valid bookmark, got %+v", got)
	}

	// The corrupt records should have been cleaned up opportunistically.
	err = s.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(prefixBookmark + "2024_corrupt")); !errors.Is(err, badger.ErrKeyNotFound) {
			t.Error("Expected corrupt record to be deleted")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
}

func TestStore_Notes_CRUD(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n := &models.Note{
		ID:      models.NewNoteID(),
		Year:    2024,
		Slug:    "event-1",
		Content: "great talk",
		Time:    125,
	}
	if _, err := s.PutNote(ctx, n); err != nil {
		t.Fatalf("PutNote failed: %v", err)
	}

	got, err := s.GetNote(ctx, n.ID)
	if err != nil {
		t.Fatalf("GetNote failed: %v", err)
	}
	if got.Content != "great talk" || got.Time != 125 {
		t.Errorf("Unexpected note: %+v", got)
	}

	notes, err := s.ListNotes(ctx, 2024)
	if err != nil {
		t.Fatalf("ListNotes failed: %v", err)
	}
	if len(notes) != 1 {
		t.Errorf("Expected 1 note, got %d", len(notes))
	}

	existed, err := s.DeleteNote(ctx, n.ID)
	if err != nil || !existed {
		t.Fatalf("DeleteNote failed: existed=%v err=%v", existed, err)
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(Config{Path: dir})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	if _, err := s.PutBookmark(ctx, testBookmark(2024, "event-1")); err != nil {
		t.Fatalf("PutBookmark failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(Config{Path: dir})
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetBookmark(ctx, "2024_event-1")
	if err != nil {
		t.Fatalf("GetBookmark after reopen failed: %v", err)
	}
	if got.Slug != "event-1" {
		t.Errorf("Unexpected bookmark after reopen: %+v", got)
	}
}

func TestStore_ClosedOperations(t *testing.T) {
	s, err := Open(Config{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := s.GetBookmark(context.Background(), "2024_x"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Expected ErrStoreClosed, got %v", err)
	}
	// Close is idempotent.
	if err := s.Close(); err != nil {
		t.Errorf("Second close should be a no-op, got %v", err)
	}
}

func TestStore_GetStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.PutBookmark(ctx, testBookmark(2024, "event-1")); err != nil {
		t.Fatalf("PutBookmark failed: %v", err)
	}
	n := &models.Note{ID: models.NewNoteID(), Year: 2024, Slug: "event-1", Content: "x"}
	if _, err := s.PutNote(ctx, n); err != nil {
		t.Fatalf("PutNote failed: %v", err)
	}

	stats := s.GetStats()
	if stats.Bookmarks != 1 || stats.Notes != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}
