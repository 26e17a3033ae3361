// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/logging"
	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/models"
)

// Queue is the ordered, deduplicated log of pending mutations, layered on the
// local store's queue collection.
//
// Entries are keyed by their coalesce key (entity type + local id), so a new
// enqueue for the same record replaces the prior pending entry in place: the
// create→update→delete history of a record collapses to the latest action
// before it is ever submitted. Removal is conditional on the entry id, so a
// drain can never delete an entry that was coalesced over while its remote
// call was in flight.
type Queue struct {
	store *Store

	// drainMu serializes queue drains. Two concurrently triggered sync runs
	// (an online event firing during a manual sync) take this lock in turn;
	// the second caller's snapshot then observes the already-drained subset.
	drainMu sync.Mutex
}

// NewQueue creates a sync queue on top of the local store.
func NewQueue(s *Store) *Queue {
	return &Queue{store: s}
}

// LockDrain acquires the drain lock, blocking until any in-flight drain
// completes. Callers must pair it with UnlockDrain.
func (q *Queue) LockDrain() {
	q.drainMu.Lock()
}

// UnlockDrain releases the drain lock.
func (q *Queue) UnlockDrain() {
	q.drainMu.Unlock()
}

// Enqueue inserts or replaces the pending entry for the entry's coalesce key.
func (q *Queue) Enqueue(ctx context.Context, entry *models.SyncQueueEntry) error {
	_ = ctx
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid queue entry: %w", err)
	}
	if entry.EnqueuedAt.IsZero() {
		entry.EnqueuedAt = time.Now().UTC()
	}
	return q.store.put(prefixQueue+entry.CoalesceKey(), entry)
}

// Snapshot returns the current pending entries for a drain pass, oldest
// first. Corrupt entries are skipped and cleaned up, never returned.
func (q *Queue) Snapshot(ctx context.Context) ([]*models.SyncQueueEntry, error) {
	var entries []*models.SyncQueueEntry
	err := q.store.scan(ctx, prefixQueue, func(_ string, val []byte) error {
		var e models.SyncQueueEntry
		if err := json.Unmarshal(val, &e); err != nil {
			return err
		}
		if err := e.Validate(); err != nil {
			return err
		}
		entries = append(entries, &e)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Oldest first so long-stuck entries are attempted before fresh ones.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].EnqueuedAt.Before(entries[j-1].EnqueuedAt); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	return entries, nil
}

// Remove deletes the given entry, but only if the stored entry still carries
// the same id. A record re-enqueued mid-drain replaces the stored entry under
// the same key; the stale drain result must not clobber that newer mutation.
func (q *Queue) Remove(ctx context.Context, entry *models.SyncQueueEntry) error {
	_ = ctx
	if err := q.store.checkOpen(); err != nil {
		return err
	}

	key := []byte(prefixQueue + entry.CoalesceKey())
	return q.store.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get queue entry: %w", err)
		}

		var stored models.SyncQueueEntry
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stored)
		}); err != nil {
			// A corrupt stored entry under this key is unrecoverable anyway.
			return txn.Delete(key)
		}

		if stored.ID != entry.ID {
			logging.Debug().
				Str("key", entry.CoalesceKey()).
				Str("drained_id", entry.ID).
				Str("stored_id", stored.ID).
				Msg("Queue entry was coalesced over during drain, keeping newer entry")
			return nil
		}
		return txn.Delete(key)
	})
}

// RecordAttempt persists a failed delivery attempt against the entry so
// attempt counts survive process restarts. Missing entries are ignored: the
// entry may have been coalesced over or removed while the attempt ran.
func (q *Queue) RecordAttempt(ctx context.Context, entry *models.SyncQueueEntry, attemptErr string) error {
	_ = ctx
	if err := q.store.checkOpen(); err != nil {
		return err
	}

	key := []byte(prefixQueue + entry.CoalesceKey())
	return q.store.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get queue entry: %w", err)
		}

		var stored models.SyncQueueEntry
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stored)
		}); err != nil {
			return fmt.Errorf("unmarshal queue entry: %w", err)
		}
		if stored.ID != entry.ID {
			return nil
		}

		stored.Attempts++
		stored.LastError = attemptErr

		data, err := json.Marshal(&stored)
		if err != nil {
			return fmt.Errorf("marshal queue entry: %w", err)
		}
		return txn.Set(key, data)
	})
}

// Len returns the number of pending entries.
func (q *Queue) Len(ctx context.Context) (int, error) {
	entries, err := q.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Pending reports whether a pending entry exists for the given record.
func (q *Queue) Pending(ctx context.Context, entity models.EntityType, localID string) (bool, error) {
	e, err := q.PendingEntry(ctx, entity, localID)
	if err != nil {
		return false, err
	}
	return e != nil, nil
}

// PendingEntry returns the pending entry for the given record, or nil when
// none is queued.
func (q *Queue) PendingEntry(ctx context.Context, entity models.EntityType, localID string) (*models.SyncQueueEntry, error) {
	_ = ctx
	var e models.SyncQueueEntry
	err := q.store.get(prefixQueue+string(entity)+":"+localID, &e)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
