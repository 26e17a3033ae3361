// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/logging"
)

const persistentPrefix = "cache:"

// PersistentTier stores cache entries in BadgerDB so the conference dataset
// survives restarts and cold starts can serve stale data before the first
// fetch completes. The hard deadline is enforced through Badger's native TTL,
// the soft deadline travels inside the stored JSON.
type PersistentTier struct {
	db *badger.DB
}

// NewPersistentTier creates the persistent tier on an already-open BadgerDB.
// The tier shares the database with the local store; it never closes it.
func NewPersistentTier(db *badger.DB) *PersistentTier {
	return &PersistentTier{db: db}
}

// Get returns the entry for key. A corrupt stored payload is deleted and
// reported as a miss, never as an error.
func (t *PersistentTier) Get(key string) (Entry, bool) {
	storeKey := []byte(persistentPrefix + key)

	var entry Entry
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storeKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Entry{}, false
	}
	if err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("Corrupt persistent cache entry, dropping")
		t.Delete(key)
		return Entry{}, false
	}

	if entry.ExpiresAt.IsZero() || entry.Expired(time.Now()) {
		t.Delete(key)
		return Entry{}, false
	}
	return entry, true
}

// Set stores an entry with a Badger TTL matching its hard deadline.
func (t *PersistentTier) Set(key string, entry Entry) error {
	data, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	return t.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(persistentPrefix+key), data).WithTTL(ttl)
		return txn.SetEntry(e)
	})
}

// Delete removes the entry for key. Best effort; a failed delete only delays
// eviction until Badger's own TTL fires.
func (t *PersistentTier) Delete(key string) {
	err := t.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(persistentPrefix + key))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		logging.Warn().Err(err).Str("key", key).Msg("Failed to delete persistent cache entry")
	}
}
