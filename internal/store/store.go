// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

// Package store implements the durable local store: persistent, keyed record
// storage for bookmarks, notes and the pending-operations queue, backed by
// BadgerDB. Records are stored as JSON under per-collection key prefixes and
// every write is atomic within a Badger transaction, so a half-written record
// is never observable. The store survives process restarts; it is the source
// of truth for everything the device has authored while offline.
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

// Key prefixes for the per-entity collections.
const (
	prefixBookmark = "bookmark:"
	prefixNote     = "note:"
	prefixQueue    = "queue:"
)

// Errors
var (
	// ErrStoreClosed is returned when the store has been closed.
	ErrStoreClosed = errors.New("store is closed")

	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
)

// Config holds local store configuration.
type Config struct {
	// Path is the directory where BadgerDB stores its files.
	// Should be on a durable filesystem (not tmpfs).
	Path string

	// InMemory runs Badger without touching disk. Test use only.
	InMemory bool

	// SyncWrites forces fsync after every write for maximum durability.
	SyncWrites bool

	// CloseTimeout is the maximum time to wait for graceful shutdown.
	// Default: 30s
	CloseTimeout time.Duration
}

// Store is the BadgerDB-backed durable local store.
type Store struct {
	db     *badger.DB
	config Config

	mu     sync.RWMutex
	closed bool
}

// Open creates or opens the local store at the configured path.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" && !cfg.InMemory {
		return nil, fmt.Errorf("store path cannot be empty")
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.InMemory = cfg.InMemory
	if cfg.InMemory {
		opts.Dir = ""
		opts.ValueDir = ""
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("sync_writes", cfg.SyncWrites).
		Bool("in_memory", cfg.InMemory).
		Msg("Local store opened")

	return &Store{db: db, config: cfg}, nil
}

// Close gracefully shuts down the store with a configurable timeout.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	timeout := s.config.CloseTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- s.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("Local store closed")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("badgerdb close timeout after %v", timeout)
	}
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// put serializes v and writes it under key in a single transaction.
func (s *Store) put(key string, v interface{}) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// get reads key and unmarshals it into v. Returns ErrNotFound for a missing
// key.
func (s *Store) get(key string, v interface{}) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get record: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	return err
}

// delete removes key. Returns true when a record was actually removed.
func (s *Store) delete(key string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	existed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return fmt.Errorf("get record: %w", err)
		}
		existed = true
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return false, err
	}
	return existed, nil
}

// scan iterates all records under prefix, calling decode for each raw value.
// Records that fail to decode are skipped, logged, and scheduled for
// best-effort cleanup; a corrupt or legacy-shaped record must never block the
// valid subset from being returned.
func (s *Store) scan(ctx context.Context, prefix string, decode func(key string, val []byte) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	var corruptKeys []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(val []byte) error {
				return decode(key, val)
			})
			if err != nil {
				logging.Warn().Err(err).Str("key", key).Msg("Skipping corrupt record")
				corruptKeys = append(corruptKeys, key)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("iterate %s records: %w", prefix, err)
	}

	// Opportunistic cleanup of corrupt records. Failures here are swallowed:
	// the read already succeeded for the valid subset.
	for _, key := range corruptKeys {
		if delErr := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete([]byte(key))
		}); delErr != nil {
			logging.Warn().Err(delErr).Str("key", key).Msg("Failed to remove corrupt record")
		}
	}

	return nil
}

// Stats contains store metrics for monitoring.
type Stats struct {
	Bookmarks    int64 `json:"bookmarks"`
	Notes        int64 `json:"notes"`
	PendingQueue int64 `json:"pending_queue"`
	DBSizeBytes  int64 `json:"db_size_bytes"`
}

// GetStats counts records per collection and reports the database size.
func (s *Store) GetStats() Stats {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return Stats{}
	}

	var stats Stats
	if err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		count := func(prefix string) int64 {
			var n int64
			p := []byte(prefix)
			for it.Seek(p); it.ValidForPrefix(p); it.Next() {
				n++
			}
			return n
		}
		stats.Bookmarks = count(prefixBookmark)
		stats.Notes = count(prefixNote)
		stats.PendingQueue = count(prefixQueue)
		return nil
	}); err != nil {
		logging.Warn().Err(err).Msg("Store stats failed to count records")
	}

	if !s.config.InMemory {
		lsm, vlog := s.db.Size()
		stats.DBSizeBytes = lsm + vlog
	}
	return stats
}

// --- Bookmarks ---

// PutBookmark validates and atomically writes a bookmark record, stamping
// UpdatedAt (and CreatedAt on first write).
func (s *Store) PutBookmark(ctx context.Context, b *models.Bookmark) (*models.Bookmark, error) {
	_ = ctx
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bookmark: %w", err)
	}

	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	if err := s.put(prefixBookmark+b.ID, b); err != nil {
		return nil, err
	}
	return b, nil
}

// GetBookmark returns the bookmark with the given local id, or ErrNotFound.
func (s *Store) GetBookmark(ctx context.Context, id string) (*models.Bookmark, error) {
	_ = ctx
	var b models.Bookmark
	if err := s.get(prefixBookmark+id, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// DeleteBookmark removes a bookmark, reporting whether it existed.
func (s *Store) DeleteBookmark(ctx context.Context, id string) (bool, error) {
	_ = ctx
	return s.delete(prefixBookmark + id)
}

// ListBookmarks returns all bookmarks, optionally filtered to a year
// (year == 0 means all years). Corrupt records are skipped, never returned.
func (s *Store) ListBookmarks(ctx context.Context, year int) ([]*models.Bookmark, error) {
	prefix := prefixBookmark
	if year > 0 {
		prefix = fmt.Sprintf("%s%d_", prefixBookmark, year)
	}

	var bookmarks []*models.Bookmark
	err := s.scan(ctx, prefix, func(_ string, val []byte) error {
		var b models.Bookmark
		if err := json.Unmarshal(val, &b); err != nil {
			return err
		}
		if err := b.Validate(); err != nil {
			return err
		}
		bookmarks = append(bookmarks, &b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bookmarks, nil
}

// --- Notes ---

// PutNote validates and atomically writes a note record.
func (s *Store) PutNote(ctx context.Context, n *models.Note) (*models.Note, error) {
	_ = ctx
	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("invalid note: %w", err)
	}

	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now

	if err := s.put(prefixNote+n.ID, n); err != nil {
		return nil, err
	}
	return n, nil
}

// GetNote returns the note with the given local id, or ErrNotFound.
func (s *Store) GetNote(ctx context.Context, id string) (*models.Note, error) {
	_ = ctx
	var n models.Note
	if err := s.get(prefixNote+id, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// DeleteNote removes a note, reporting whether it existed.
func (s *Store) DeleteNote(ctx context.Context, id string) (bool, error) {
	_ = ctx
	return s.delete(prefixNote + id)
}

// ListNotes returns all notes, optionally filtered to a year (0 means all).
func (s *Store) ListNotes(ctx context.Context, year int) ([]*models.Note, error) {
	var notes []*models.Note
	err := s.scan(ctx, prefixNote, func(_ string, val []byte) error {
		var n models.Note
		if err := json.Unmarshal(val, &n); err != nil {
			return err
		}
		if err := n.Validate(); err != nil {
			return err
		}
		if year == 0 || n.Year == year {
			notes = append(notes, &n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return notes, nil
}

// Ready reports whether the store can serve requests.
func (s *Store) Ready() bool {
	return s.checkOpen() == nil
}

// DB returns the underlying BadgerDB instance. Components that share the
// store's database (the persistent cache tier) use this; the returned DB must
// not be closed directly.
func (s *Store) DB() *badger.DB {
	return s.db
}
