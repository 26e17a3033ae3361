// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/logging"
	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/metrics"
)

// HardTTLMultiplier scales the soft TTL into the hard TTL: a stale entry
// remains servable for this many soft lifetimes before it is dropped.
const HardTTLMultiplier = 4

// Loader fetches the authoritative bytes for a cache key.
type Loader func(ctx context.Context) ([]byte, error)

// Config holds cache manager configuration.
type Config struct {
	// Capacity bounds the in-memory tier.
	Capacity int

	// SoftTTL is the default freshness window for entries stored without an
	// explicit soft expiry. The hard TTL is SoftTTL * HardTTLMultiplier.
	SoftTTL time.Duration

	// FetchTimeout bounds the blocking fetch on a cache miss.
	FetchTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Capacity:     DefaultCapacity,
		SoftTTL:      time.Hour,
		FetchTimeout: 30 * time.Second,
	}
}

// Manager is the two-tier stale-while-revalidate cache. All reads go memory
// tier first, then the optional persistent tier; writes go to both.
type Manager struct {
	mem     *MemoryTier
	persist *PersistentTier
	cfg     Config

	// inflight holds cache keys with a background revalidation running, so
	// a burst of stale hits spawns exactly one fetch per key.
	inflight sync.Map
}

// NewManager creates the cache manager. persist may be nil for a memory-only
// cache.
func NewManager(persist *PersistentTier, cfg Config) *Manager {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	if cfg.SoftTTL <= 0 {
		cfg.SoftTTL = DefaultConfig().SoftTTL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultConfig().FetchTimeout
	}
	return &Manager{
		mem:     NewMemoryTier(cfg.Capacity),
		persist: persist,
		cfg:     cfg,
	}
}

// Get returns the cached bytes for key if a hard-valid entry exists in either
// tier. Staleness is not distinguished; use GetWithStaleness for that.
func (m *Manager) Get(ctx context.Context, key string) ([]byte, bool) {
	data, _, ok := m.GetWithStaleness(ctx, key)
	return data, ok
}

// GetWithStaleness returns the cached bytes and whether they are past their
// soft deadline. A persistent-tier hit is promoted into the memory tier.
func (m *Manager) GetWithStaleness(ctx context.Context, key string) ([]byte, bool, bool) {
	_ = ctx

	if entry, ok := m.mem.Get(key); ok {
		stale := entry.Stale(time.Now())
		if stale {
			metrics.RecordCacheRequest("memory", "stale_hit")
		} else {
			metrics.RecordCacheRequest("memory", "hit")
		}
		return entry.Data, stale, true
	}
	metrics.RecordCacheRequest("memory", "miss")

	if m.persist == nil {
		return nil, false, false
	}

	entry, ok := m.persist.Get(key)
	if !ok {
		metrics.RecordCacheRequest("persistent", "miss")
		return nil, false, false
	}

	stale := entry.Stale(time.Now())
	if stale {
		metrics.RecordCacheRequest("persistent", "stale_hit")
	} else {
		metrics.RecordCacheRequest("persistent", "hit")
	}
	m.mem.Set(key, entry)
	return entry.Data, stale, true
}

// Set stores the bytes under key with the default soft TTL.
func (m *Manager) Set(ctx context.Context, key string, data []byte) {
	m.SetWithSoftExpiry(ctx, key, data, m.cfg.SoftTTL)
}

// SetWithSoftExpiry stores the bytes with an explicit freshness window. The
// hard deadline is the soft window scaled by HardTTLMultiplier.
func (m *Manager) SetWithSoftExpiry(ctx context.Context, key string, data []byte, softTTL time.Duration) {
	_ = ctx
	if softTTL <= 0 {
		softTTL = m.cfg.SoftTTL
	}

	now := time.Now()
	entry := Entry{
		Data:          data,
		SoftExpiresAt: now.Add(softTTL),
		ExpiresAt:     now.Add(softTTL * HardTTLMultiplier),
	}

	m.mem.Set(key, entry)
	if m.persist != nil {
		if err := m.persist.Set(key, entry); err != nil {
			logging.Warn().Err(err).Str("key", key).Msg("Failed to write persistent cache tier")
		}
	}
}

// Invalidate removes the key from both tiers.
func (m *Manager) Invalidate(ctx context.Context, key string) {
	_ = ctx
	m.mem.Delete(key)
	if m.persist != nil {
		m.persist.Delete(key)
	}
}

// GetOrFetch is the stale-while-revalidate read path:
//   - fresh hit: served directly.
//   - stale hit: served directly while one background revalidation per key
//     refreshes the entry.
//   - miss: blocks on the loader with the configured fetch deadline; when the
//     loader cannot complete, any hard-valid stale value is served instead.
func (m *Manager) GetOrFetch(ctx context.Context, key string, load Loader) ([]byte, error) {
	data, stale, ok := m.GetWithStaleness(ctx, key)
	if ok {
		if stale {
			m.revalidate(key, load)
		}
		return data, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
	defer cancel()

	fresh, err := load(fetchCtx)
	if err != nil {
		// The entry may have appeared (or been resurrected from the
		// persistent tier) while the fetch ran; any hard-valid value
		// beats an error.
		if fallback, _, ok := m.GetWithStaleness(ctx, key); ok {
			logging.Warn().Err(err).Str("key", key).Msg("Fetch failed, serving stale cache entry")
			return fallback, nil
		}
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}

	m.Set(ctx, key, fresh)
	return fresh, nil
}

// revalidate refreshes a stale key in the background, at most once per key at
// a time.
func (m *Manager) revalidate(key string, load Loader) {
	if _, running := m.inflight.LoadOrStore(key, struct{}{}); running {
		return
	}

	go func() {
		defer m.inflight.Delete(key)

		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.FetchTimeout)
		defer cancel()

		fresh, err := load(ctx)
		if err != nil {
			metrics.RecordCacheRevalidation("failed")
			logging.Warn().Err(err).Str("key", key).Msg("Background revalidation failed, keeping stale entry")
			return
		}

		m.Set(context.Background(), key, fresh)
		metrics.RecordCacheRevalidation("refreshed")
		logging.Debug().Str("key", key).Msg("Cache entry revalidated")
	}()
}

// Sweep drops hard-expired entries from the memory tier. The persistent tier
// relies on Badger TTLs. Returns the number of entries removed.
func (m *Manager) Sweep() int {
	return m.mem.Sweep()
}

// DatasetKey is the cache key for a year's conference dataset.
func DatasetKey(year int) string {
	return fmt.Sprintf("dataset:%d", year)
}
