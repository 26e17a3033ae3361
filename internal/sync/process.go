// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

package sync

import (
	"context"
	"errors"
	"time"

	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/logging"
	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/models"
	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/store"
)

// outcome classifies how a single queue entry was resolved.
type outcome int

const (
	outcomeSynced outcome = iota
	outcomeCleaned
	outcomeFailed
)

// processEntry resolves one queue entry against the remote API. It only ever
// reports failure through the returned EntryError; errors never escape to the
// drain pass.
func (e *Engine) processEntry(ctx context.Context, userID string, entry *models.SyncQueueEntry) (outcome, *EntryError) {
	var res models.RPCResult

	switch entry.EntityType {
	case models.EntityBookmark:
		res = e.processBookmarkEntry(ctx, userID, entry)
	case models.EntityNote:
		res = e.processNoteEntry(ctx, entry)
	default:
		// Validate() on enqueue makes this unreachable; drop defensively.
		res = models.RPCSuccess(0)
	}

	switch {
	case res.OK:
		if err := e.queue.Remove(ctx, entry); err != nil {
			return outcomeFailed, &EntryError{EntryID: entry.ID, LocalID: entry.LocalID, Message: "remove confirmed entry: " + err.Error()}
		}
		return outcomeSynced, nil

	case res.NotFound():
		// The remote object is already gone; retrying forever helps nobody.
		// Clear the entry and any now-meaningless local server pointer.
		logging.Info().
			Str("entity", string(entry.EntityType)).
			Str("local_id", entry.LocalID).
			Msg("Remote record gone, clearing queue entry")
		e.clearStaleServerPointer(ctx, entry)
		if err := e.queue.Remove(ctx, entry); err != nil {
			return outcomeFailed, &EntryError{EntryID: entry.ID, LocalID: entry.LocalID, Message: "remove cleaned entry: " + err.Error()}
		}
		return outcomeCleaned, nil

	default:
		if err := e.queue.RecordAttempt(ctx, entry, res.Message); err != nil {
			logging.Warn().Err(err).Str("local_id", entry.LocalID).Msg("Failed to record attempt")
		}
		return outcomeFailed, &EntryError{EntryID: entry.ID, LocalID: entry.LocalID, Message: res.Message}
	}
}

func (e *Engine) processBookmarkEntry(ctx context.Context, userID string, entry *models.SyncQueueEntry) models.RPCResult {
	switch entry.Action {
	case models.ActionCreate:
		return e.createBookmark(ctx, userID, entry)

	case models.ActionUpdate:
		// A record never confirmed remotely has nothing to update; fall
		// back to a create, which the server upserts by deterministic id.
		if entry.ServerID == "" {
			return e.createBookmark(ctx, userID, entry)
		}
		var b models.Bookmark
		if err := entry.UnmarshalPayload(&b); err != nil {
			return models.RPCResult{OK: false, Kind: models.FailureValidation, Message: "corrupt update payload: " + err.Error()}
		}
		upd := models.UpdateFromBookmark(&b)
		return e.callWithRetry(ctx, func() models.RPCResult {
			return e.client.UpdateBookmark(ctx, entry.ServerID, upd)
		})

	case models.ActionDelete:
		// Never synced means nothing to delete server-side.
		if entry.ServerID == "" {
			return models.RPCSuccess(0)
		}
		return e.callWithRetry(ctx, func() models.RPCResult {
			return e.client.DeleteBookmark(ctx, entry.ServerID)
		})

	default:
		return models.RPCResult{OK: false, Kind: models.FailureValidation, Message: "unknown action " + string(entry.Action)}
	}
}

func (e *Engine) createBookmark(ctx context.Context, userID string, entry *models.SyncQueueEntry) models.RPCResult {
	var b models.Bookmark
	if err := entry.UnmarshalPayload(&b); err != nil {
		return models.RPCResult{OK: false, Kind: models.FailureValidation, Message: "corrupt create payload: " + err.Error()}
	}

	res := e.callWithRetry(ctx, func() models.RPCResult {
		return e.client.CreateBookmark(ctx, &b)
	})
	if !res.OK {
		return res
	}

	// Stamp the deterministic server id on the local record if it still
	// exists; the user may have deleted it while the create was queued.
	serverID := models.ServerBookmarkID(userID, b.Year, b.Slug)
	local, err := e.store.GetBookmark(ctx, entry.LocalID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logging.Warn().Err(err).Str("local_id", entry.LocalID).Msg("Failed to load bookmark for server id stamp")
		}
		return res
	}
	local.ServerID = serverID
	if _, err := e.store.PutBookmark(ctx, local); err != nil {
		logging.Warn().Err(err).Str("local_id", entry.LocalID).Msg("Failed to stamp server id")
	}
	return res
}

func (e *Engine) processNoteEntry(ctx context.Context, entry *models.SyncQueueEntry) models.RPCResult {
	switch entry.Action {
	case models.ActionCreate:
		return e.createNote(ctx, entry)

	case models.ActionUpdate:
		if entry.ServerID == "" {
			return e.createNote(ctx, entry)
		}
		var n models.Note
		if err := entry.UnmarshalPayload(&n); err != nil {
			return models.RPCResult{OK: false, Kind: models.FailureValidation, Message: "corrupt update payload: " + err.Error()}
		}
		return e.callWithRetry(ctx, func() models.RPCResult {
			return e.client.UpdateNote(ctx, entry.ServerID, &n)
		})

	case models.ActionDelete:
		if entry.ServerID == "" {
			return models.RPCSuccess(0)
		}
		return e.callWithRetry(ctx, func() models.RPCResult {
			return e.client.DeleteNote(ctx, entry.ServerID)
		})

	default:
		return models.RPCResult{OK: false, Kind: models.FailureValidation, Message: "unknown action " + string(entry.Action)}
	}
}

func (e *Engine) createNote(ctx context.Context, entry *models.SyncQueueEntry) models.RPCResult {
	var n models.Note
	if err := entry.UnmarshalPayload(&n); err != nil {
		return models.RPCResult{OK: false, Kind: models.FailureValidation, Message: "corrupt create payload: " + err.Error()}
	}

	var serverID string
	res := e.callWithRetry(ctx, func() models.RPCResult {
		id, r := e.client.CreateNote(ctx, &n)
		if r.OK {
			serverID = id
		}
		return r
	})
	if !res.OK {
		return res
	}

	local, err := e.store.GetNote(ctx, entry.LocalID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logging.Warn().Err(err).Str("local_id", entry.LocalID).Msg("Failed to load note for server id stamp")
		}
		return res
	}
	local.ServerID = serverID
	if _, err := e.store.PutNote(ctx, local); err != nil {
		logging.Warn().Err(err).Str("local_id", entry.LocalID).Msg("Failed to stamp server id")
	}
	return res
}

// clearStaleServerPointer removes a local record's server id after the remote
// confirmed it no longer holds the object.
func (e *Engine) clearStaleServerPointer(ctx context.Context, entry *models.SyncQueueEntry) {
	if entry.Action == models.ActionDelete {
		return // local record is already gone
	}

	switch entry.EntityType {
	case models.EntityBookmark:
		b, err := e.store.GetBookmark(ctx, entry.LocalID)
		if err != nil {
			return
		}
		b.ServerID = ""
		if _, err := e.store.PutBookmark(ctx, b); err != nil {
			logging.Warn().Err(err).Str("local_id", entry.LocalID).Msg("Failed to clear stale server pointer")
		}
	case models.EntityNote:
		n, err := e.store.GetNote(ctx, entry.LocalID)
		if err != nil {
			return
		}
		n.ServerID = ""
		if _, err := e.store.PutNote(ctx, n); err != nil {
			logging.Warn().Err(err).Str("local_id", entry.LocalID).Msg("Failed to clear stale server pointer")
		}
	}
}

// callWithRetry executes a remote call with bounded exponential backoff,
// absorbing transient failures. Terminal results (success, 404, validation,
// auth) return immediately.
func (e *Engine) callWithRetry(ctx context.Context, fn func() models.RPCResult) models.RPCResult {
	delay := e.cfg.RetryDelay
	var res models.RPCResult

	for attempt := 0; attempt < e.cfg.RetryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return models.RPCResult{OK: false, Kind: models.FailureUnknown, Message: err.Error()}
		}

		res = fn()
		if res.OK || !res.Retryable() {
			return res
		}

		if attempt < e.cfg.RetryAttempts-1 {
			logging.Warn().
				Str("error", res.Message).
				Int("attempt", attempt+1).
				Int("max_attempts", e.cfg.RetryAttempts).
				Dur("delay", delay).
				Msg("Retrying remote call")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return models.RPCResult{OK: false, Kind: models.FailureUnknown, Message: ctx.Err().Error()}
			}
			delay *= 2
		}
	}
	return res
}
