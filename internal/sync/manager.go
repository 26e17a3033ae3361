// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/logging"
	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/models"
	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/store"
)

// Manager is the write API of the sync core. Every mutation runs in two
// phases: a synchronous local commit (record write + queue entry in the same
// call), then a non-blocking nudge to the engine. The caller returns as soon
// as the local state is durable; delivery happens in the background.
type Manager struct {
	store  *store.Store
	queue  *store.Queue
	engine *Engine
}

// NewManager creates the write API over the store, queue and engine.
func NewManager(s *store.Store, q *store.Queue, e *Engine) *Manager {
	return &Manager{store: s, queue: q, engine: e}
}

// SaveBookmark commits a bookmark locally and queues it for delivery. A
// first-time save queues a create; a save over an existing record queues an
// update carrying any known server id.
func (m *Manager) SaveBookmark(ctx context.Context, b *models.Bookmark) (*models.Bookmark, error) {
	if b.ID == "" {
		b.ID = models.LocalBookmarkID(b.Year, b.Slug)
	}

	action := models.ActionCreate
	var serverID string
	existing, err := m.store.GetBookmark(ctx, b.ID)
	if err == nil {
		b.CreatedAt = existing.CreatedAt
		if existing.ServerID != "" {
			b.ServerID = existing.ServerID
			serverID = existing.ServerID
			action = models.ActionUpdate
		}
	}

	saved, err := m.store.PutBookmark(ctx, b)
	if err != nil {
		return nil, err
	}

	entry := models.NewSyncQueueEntry(models.EntityBookmark, action, saved.ID)
	entry.ServerID = serverID
	if err := entry.SetPayload(saved); err != nil {
		return nil, err
	}
	if err := m.queue.Enqueue(ctx, entry); err != nil {
		return nil, fmt.Errorf("enqueue bookmark: %w", err)
	}

	m.requestSync()
	return saved, nil
}

// RemoveBookmark deletes a bookmark locally and queues the remote delete.
// A record that was never confirmed remotely has nothing to delete upstream,
// so its pending entry is dropped instead of queueing a delete.
func (m *Manager) RemoveBookmark(ctx context.Context, id string) error {
	existing, err := m.store.GetBookmark(ctx, id)
	if err != nil {
		return err
	}

	if _, err := m.store.DeleteBookmark(ctx, id); err != nil {
		return err
	}

	if err := m.queueDelete(ctx, models.EntityBookmark, id, existing.ServerID); err != nil {
		return err
	}

	m.requestSync()
	return nil
}

// SaveNote commits a note locally and queues it for delivery. A note without
// an id gets a temporary local uuid.
func (m *Manager) SaveNote(ctx context.Context, n *models.Note) (*models.Note, error) {
	action := models.ActionCreate
	var serverID string
	if n.ID == "" {
		n.ID = models.NewNoteID()
	} else {
		existing, err := m.store.GetNote(ctx, n.ID)
		if err == nil {
			n.CreatedAt = existing.CreatedAt
			if existing.ServerID != "" {
				n.ServerID = existing.ServerID
				serverID = existing.ServerID
				action = models.ActionUpdate
			}
		}
	}

	saved, err := m.store.PutNote(ctx, n)
	if err != nil {
		return nil, err
	}

	entry := models.NewSyncQueueEntry(models.EntityNote, action, saved.ID)
	entry.ServerID = serverID
	if err := entry.SetPayload(saved); err != nil {
		return nil, err
	}
	if err := m.queue.Enqueue(ctx, entry); err != nil {
		return nil, fmt.Errorf("enqueue note: %w", err)
	}

	m.requestSync()
	return saved, nil
}

// RemoveNote deletes a note locally and queues the remote delete.
func (m *Manager) RemoveNote(ctx context.Context, id string) error {
	existing, err := m.store.GetNote(ctx, id)
	if err != nil {
		return err
	}

	if _, err := m.store.DeleteNote(ctx, id); err != nil {
		return err
	}

	if err := m.queueDelete(ctx, models.EntityNote, id, existing.ServerID); err != nil {
		return err
	}

	m.requestSync()
	return nil
}

// queueDelete enqueues a remote delete, collapsing create+delete on a record
// the server never saw into dropping the pending entry outright.
func (m *Manager) queueDelete(ctx context.Context, entity models.EntityType, localID, serverID string) error {
	if serverID == "" {
		pending, err := m.queue.PendingEntry(ctx, entity, localID)
		if err != nil {
			return fmt.Errorf("check pending entry: %w", err)
		}
		if pending != nil && pending.ServerID != "" {
			// The queued mutation targets a confirmed record after all.
			serverID = pending.ServerID
		} else {
			if pending != nil {
				if err := m.queue.Remove(ctx, pending); err != nil {
					return fmt.Errorf("drop pending entry: %w", err)
				}
				logging.Debug().
					Str("entity", string(entity)).
					Str("local_id", localID).
					Msg("Create and delete collapsed before sync, nothing to deliver")
			}
			return nil
		}
	}

	entry := models.NewSyncQueueEntry(entity, models.ActionDelete, localID)
	entry.ServerID = serverID
	return m.queue.Enqueue(ctx, entry)
}

// Bookmarks lists the local bookmarks for a year (all years when 0).
func (m *Manager) Bookmarks(ctx context.Context, year int) ([]*models.Bookmark, error) {
	return m.store.ListBookmarks(ctx, year)
}

// Notes lists the local notes for a year (all years when 0).
func (m *Manager) Notes(ctx context.Context, year int) ([]*models.Note, error) {
	return m.store.ListNotes(ctx, year)
}

// PendingCount returns the queue depth.
func (m *Manager) PendingCount(ctx context.Context) (int, error) {
	return m.queue.Len(ctx)
}

// requestSync nudges the engine without blocking the mutation path.
func (m *Manager) requestSync() {
	if m.engine == nil {
		return
	}
	m.engine.NotifyOnline()
}

// Status is a point-in-time view of the sync core for status surfaces.
type Status struct {
	UserID       string    `json:"user_id,omitempty"`
	PendingCount int       `json:"pending_count"`
	LastSync     time.Time `json:"last_sync"`
	LastResult   *Result   `json:"last_result,omitempty"`
}

// Status reports the current sync state.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	pending, err := m.queue.Len(ctx)
	if err != nil {
		return nil, err
	}

	st := &Status{PendingCount: pending}
	if m.engine != nil {
		st.UserID = m.engine.UserID()
		last, result := m.engine.LastSync()
		st.LastSync = last
		if !last.IsZero() {
			st.LastResult = &result
		}
	}
	return st, nil
}
