// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir())
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close badger: %v", err)
		}
	})
	return db
}

func testManagerCfg() Config {
	return Config{
		Capacity:     16,
		SoftTTL:      time.Hour,
		FetchTimeout: time.Second,
	}
}

func TestManager_SetGet(t *testing.T) {
	m := NewManager(nil, testManagerCfg())
	ctx := context.Background()

	if _, ok := m.Get(ctx, "k"); ok {
		t.Error("expected miss")
	}

	m.Set(ctx, "k", []byte("v"))
	data, stale, ok := m.GetWithStaleness(ctx, "k")
	if !ok || stale {
		t.Fatalf("ok=%v stale=%v, want fresh hit", ok, stale)
	}
	if string(data) != "v" {
		t.Errorf("data = %q", data)
	}
}

func TestManager_PersistentTierPromotion(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first := NewManager(NewPersistentTier(db), testManagerCfg())
	first.Set(ctx, "dataset:2026", []byte(`{"events":[]}`))

	// A fresh manager over the same DB simulates a restart: the memory tier
	// is cold but the persistent tier still holds the entry.
	second := NewManager(NewPersistentTier(db), testManagerCfg())
	data, stale, ok := second.GetWithStaleness(ctx, "dataset:2026")
	if !ok {
		t.Fatal("expected persistent tier hit after restart")
	}
	if stale {
		t.Error("entry should still be fresh")
	}
	if string(data) != `{"events":[]}` {
		t.Errorf("data = %q", data)
	}

	// Promotion: the memory tier now answers directly.
	if _, ok := second.mem.Get("dataset:2026"); !ok {
		t.Error("expected entry promoted into memory tier")
	}
}

func TestManager_CorruptPersistentEntryIsMiss(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("cache:broken"), []byte("{not json"))
	})
	if err != nil {
		t.Fatalf("plant corrupt entry: %v", err)
	}

	m := NewManager(NewPersistentTier(db), testManagerCfg())
	if _, ok := m.Get(ctx, "broken"); ok {
		t.Fatal("corrupt entry served")
	}

	// The corrupt record is gone, not just skipped.
	err = db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte("cache:broken"))
		return err
	})
	if !errors.Is(err, badger.ErrKeyNotFound) {
		t.Errorf("corrupt entry not deleted: %v", err)
	}
}

func TestManager_Invalidate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	m := NewManager(NewPersistentTier(db), testManagerCfg())
	m.Set(ctx, "k", []byte("v"))
	m.Invalidate(ctx, "k")

	if _, ok := m.Get(ctx, "k"); ok {
		t.Error("invalidated entry still served from a tier")
	}
}

func TestGetOrFetch_MissBlocksOnLoader(t *testing.T) {
	m := NewManager(nil, testManagerCfg())
	ctx := context.Background()

	var loads atomic.Int32
	load := func(ctx context.Context) ([]byte, error) {
		loads.Add(1)
		return []byte("fetched"), nil
	}

	data, err := m.GetOrFetch(ctx, "k", load)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(data) != "fetched" {
		t.Errorf("data = %q", data)
	}

	// Second read is a fresh hit, no loader call.
	if _, err := m.GetOrFetch(ctx, "k", load); err != nil {
		t.Fatalf("cached read: %v", err)
	}
	if loads.Load() != 1 {
		t.Errorf("loader called %d times, want 1", loads.Load())
	}
}

func TestGetOrFetch_FailedFetchFallsBackToStale(t *testing.T) {
	m := NewManager(nil, testManagerCfg())
	ctx := context.Background()

	// Seed an entry already past its soft deadline but hard-valid, then
	// drop it from memory staleness bookkeeping by writing it directly.
	m.mem.Set("k", staleEntry("stale-but-valid"))

	// Stale hit path serves immediately even though the loader fails.
	data, err := m.GetOrFetch(ctx, "k", func(ctx context.Context) ([]byte, error) {
		return nil, errors.New("upstream down")
	})
	if err != nil {
		t.Fatalf("expected stale fallback, got %v", err)
	}
	if string(data) != "stale-but-valid" {
		t.Errorf("data = %q", data)
	}
}

func TestGetOrFetch_MissWithFailingLoaderIsError(t *testing.T) {
	m := NewManager(nil, testManagerCfg())

	_, err := m.GetOrFetch(context.Background(), "absent", func(ctx context.Context) ([]byte, error) {
		return nil, errors.New("upstream down")
	})
	if err == nil {
		t.Fatal("expected error with no fallback available")
	}
}

func TestGetOrFetch_StaleHitRevalidatesOnce(t *testing.T) {
	m := NewManager(nil, testManagerCfg())
	ctx := context.Background()

	m.mem.Set("k", staleEntry("old"))

	var loads atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	load := func(ctx context.Context) ([]byte, error) {
		if loads.Add(1) == 1 {
			close(started)
			<-release
		}
		return []byte("new"), nil
	}

	// A burst of stale hits must spawn exactly one background fetch.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := m.GetOrFetch(ctx, "k", load)
			if err != nil {
				t.Errorf("stale read: %v", err)
				return
			}
			if string(data) != "old" {
				t.Errorf("stale read served %q, want old", data)
			}
		}()
	}
	wg.Wait()

	<-started
	close(release)

	// Wait for the revalidation to land.
	deadline := time.After(2 * time.Second)
	for {
		if data, stale, ok := m.GetWithStaleness(ctx, "k"); ok && !stale && string(data) == "new" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("revalidated entry never landed")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if loads.Load() != 1 {
		t.Errorf("loader called %d times, want 1", loads.Load())
	}
}

func TestDatasetKey(t *testing.T) {
	if got := DatasetKey(2026); got != "dataset:2026" {
		t.Errorf("DatasetKey = %q", got)
	}
}

func TestSetWithSoftExpiry_HardDeadlineScaled(t *testing.T) {
	m := NewManager(nil, testManagerCfg())
	ctx := context.Background()

	m.SetWithSoftExpiry(ctx, "k", []byte("v"), time.Hour)
	entry, ok := m.mem.Get("k")
	if !ok {
		t.Fatal("expected entry")
	}

	window := entry.ExpiresAt.Sub(entry.SoftExpiresAt)
	if want := time.Duration(HardTTLMultiplier-1) * time.Hour; window != want {
		t.Errorf("hard-soft window = %v, want %v", window, want)
	}
}
