// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/logging"
	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/metrics"
	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/models"
	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/store"
)

// RemoteClient is the RPC boundary the engine drains against. Satisfied by
// remote.Client and remote.BreakerClient.
type RemoteClient interface {
	CreateBookmark(ctx context.Context, b *models.Bookmark) models.RPCResult
	UpdateBookmark(ctx context.Context, serverID string, upd models.BookmarkUpdate) models.RPCResult
	DeleteBookmark(ctx context.Context, serverID string) models.RPCResult
	CreateNote(ctx context.Context, n *models.Note) (string, models.RPCResult)
	UpdateNote(ctx context.Context, serverID string, n *models.Note) models.RPCResult
	DeleteNote(ctx context.Context, serverID string) models.RPCResult
	FetchBookmarks(ctx context.Context, year int) ([]models.RemoteBookmark, error)
}

// Config holds sync engine configuration.
type Config struct {
	// Interval between periodic background drains.
	Interval time.Duration

	// RetryAttempts is the bounded per-call retry count.
	RetryAttempts int

	// RetryDelay is the initial backoff delay, doubled per attempt.
	RetryDelay time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Interval:      5 * time.Minute,
		RetryAttempts: 3,
		RetryDelay:    2 * time.Second,
	}
}

// EntryError is one queue entry's failure within a drain pass.
type EntryError struct {
	EntryID string `json:"entry_id"`
	LocalID string `json:"local_id"`
	Message string `json:"message"`
}

// Result aggregates one drain pass. Success means no entry failed; cleaned
// entries (remote already gone) do not count as failures.
type Result struct {
	Success      bool         `json:"success"`
	SyncedCount  int          `json:"synced_count"`
	CleanedCount int          `json:"cleaned_count"`
	Errors       []EntryError `json:"errors,omitempty"`
}

// Engine drains the sync queue against the companion API.
type Engine struct {
	store  *store.Store
	queue  *store.Queue
	client RemoteClient
	cfg    Config

	mu         sync.RWMutex
	userID     string
	running    bool
	lastSync   time.Time
	lastResult Result

	stopChan   chan struct{}
	onlineChan chan struct{}
	wg         sync.WaitGroup
}

// NewEngine creates a sync engine. The engine is idle until Start is called
// or Drain is invoked directly.
func NewEngine(s *store.Store, q *store.Queue, client RemoteClient, cfg Config) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = DefaultConfig().RetryAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultConfig().RetryDelay
	}
	return &Engine{
		store:      s,
		queue:      q,
		client:     client,
		cfg:        cfg,
		stopChan:   make(chan struct{}),
		onlineChan: make(chan struct{}, 1),
	}
}

// SetUser records the authenticated user whose deterministic server ids the
// engine stamps. An empty id disables draining (mutations still queue up
// locally).
func (e *Engine) SetUser(userID string) {
	e.mu.Lock()
	e.userID = userID
	e.mu.Unlock()
}

// UserID returns the currently authenticated user id, empty when signed out.
func (e *Engine) UserID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.userID
}

// Start begins the periodic background drain loop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("sync engine is already running")
	}
	e.running = true
	e.stopChan = make(chan struct{})
	stop := e.stopChan
	e.mu.Unlock()

	logging.Info().
		Dur("interval", e.cfg.Interval).
		Int("retry_attempts", e.cfg.RetryAttempts).
		Msg("Sync engine started")

	e.wg.Add(1)
	go e.drainLoop(ctx, stop)
	return nil
}

// Stop gracefully stops the drain loop, waiting for an in-flight drain to
// finish.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return fmt.Errorf("sync engine is not running")
	}
	e.running = false
	stop := e.stopChan
	e.mu.Unlock()

	close(stop)
	e.wg.Wait()
	logging.Info().Msg("Sync engine stopped")
	return nil
}

// NotifyOnline signals that connectivity returned; the loop drains soon
// after. Non-blocking, safe to call from any goroutine.
func (e *Engine) NotifyOnline() {
	select {
	case e.onlineChan <- struct{}{}:
	default:
	}
}

// LastSync returns the completion time and result of the most recent drain.
func (e *Engine) LastSync() (time.Time, Result) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastSync, e.lastResult
}

func (e *Engine) drainLoop(ctx context.Context, stop <-chan struct{}) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	// Initial drain picks up whatever queued while the process was down.
	e.Drain(ctx)

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Drain(ctx)
		case <-e.onlineChan:
			logging.Debug().Msg("Online signal received, draining sync queue")
			e.Drain(ctx)
		}
	}
}

// Drain processes the current queue snapshot. Concurrent callers serialize on
// the queue's drain lock; the later caller then snapshots the already-drained
// subset. Drain never returns an error: every failure is folded into the
// aggregate result.
func (e *Engine) Drain(ctx context.Context) Result {
	e.mu.RLock()
	userID := e.userID
	e.mu.RUnlock()

	if userID == "" {
		logging.Debug().Msg("Skipping drain: not authenticated")
		return Result{Success: true}
	}

	e.queue.LockDrain()
	defer e.queue.UnlockDrain()

	start := time.Now()

	entries, err := e.queue.Snapshot(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to snapshot sync queue")
		return Result{Success: false, Errors: []EntryError{{Message: fmt.Sprintf("snapshot queue: %v", err)}}}
	}
	if len(entries) == 0 {
		metrics.UpdateQueueDepth(0)
		return Result{Success: true}
	}

	logging.Info().Int("pending", len(entries)).Msg("Draining sync queue")

	// Entries are independent: process them concurrently and aggregate
	// outcomes. One entry's permanent failure must not block another's
	// success.
	type entryResult struct {
		outcome outcome
		err     *EntryError
	}
	results := make([]entryResult, len(entries))

	var wg sync.WaitGroup
	for i, entry := range entries {
		wg.Add(1)
		go func(i int, entry *models.SyncQueueEntry) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = entryResult{outcome: outcomeFailed, err: &EntryError{
						EntryID: entry.ID,
						LocalID: entry.LocalID,
						Message: fmt.Sprintf("panic processing entry: %v", r),
					}}
				}
			}()
			out, entryErr := e.processEntry(ctx, userID, entry)
			results[i] = entryResult{outcome: out, err: entryErr}
		}(i, entry)
	}
	wg.Wait()

	result := Result{Success: true}
	for _, r := range results {
		switch r.outcome {
		case outcomeSynced:
			result.SyncedCount++
			metrics.RecordEntrySynced()
		case outcomeCleaned:
			result.CleanedCount++
			metrics.RecordEntryCleaned()
		case outcomeFailed:
			result.Success = false
			if r.err != nil {
				result.Errors = append(result.Errors, *r.err)
			}
			metrics.RecordEntryFailed()
		}
	}

	if depth, err := e.queue.Len(ctx); err == nil {
		metrics.UpdateQueueDepth(int64(depth))
	}
	metrics.RecordDrainLatency(time.Since(start).Seconds())

	e.mu.Lock()
	e.lastSync = time.Now()
	e.lastResult = result
	e.mu.Unlock()

	logging.Info().
		Int("synced", result.SyncedCount).
		Int("cleaned", result.CleanedCount).
		Int("failed", len(result.Errors)).
		Dur("elapsed", time.Since(start)).
		Msg("Drain complete")

	return result
}
