// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

// Package main is the entry point for the FOSDEM companion sync daemon.
//
// The daemon owns the device's local-first state: a durable BadgerDB store of
// bookmarks and notes, a coalescing queue of pending mutations, a supervised
// background engine that drains the queue against the companion API, a
// reconciler that folds server state back into the local store, and a
// two-tier stale-while-revalidate cache for the conference dataset.
//
// Components start in order: configuration (koanf), logging (zerolog), the
// local store, the remote client (optionally behind a circuit breaker), the
// sync engine and reconciler, the cache, and finally the suture supervisor
// tree carrying the drain loop, the cache janitor and the HTTP listener.
//
// Shutdown is graceful on SIGINT/SIGTERM: the supervisor winds down its
// services, the in-flight drain finishes, and the store closes last.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/api"
	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/cache"
	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/config"
	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/logging"
	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/remote"
	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/store"
	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/supervisor"
	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/supervisor/services"
	syncpkg "github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/sync"
)

// remoteAPI is the full surface the daemon needs from the remote client:
// the engine's RPC set plus the dataset fetch the cache path uses.
type remoteAPI interface {
	syncpkg.RemoteClient
	api.DatasetFetcher
}

func currentYear() int {
	return time.Now().UTC().Year()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Init(logging.Config{Level: "info", Format: "json"})
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Msg("Starting fosdem-syncd")

	s, err := store.Open(store.Config{
		Path:         cfg.Store.Path,
		SyncWrites:   cfg.Store.SyncWrites,
		CloseTimeout: cfg.Store.CloseTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open local store")
	}
	defer func() {
		if err := s.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close local store")
		}
	}()

	queue := store.NewQueue(s)

	client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Token, cfg.Remote.Timeout)
	var rpc remoteAPI = client
	if cfg.Remote.Breaker {
		rpc = remote.NewBreakerClient(client)
	}

	engine := syncpkg.NewEngine(s, queue, rpc, syncpkg.Config{
		Interval:      cfg.Sync.Interval,
		RetryAttempts: cfg.Sync.RetryAttempts,
		RetryDelay:    cfg.Sync.RetryDelay,
	})
	if cfg.Remote.UserID != "" {
		engine.SetUser(cfg.Remote.UserID)
	}

	manager := syncpkg.NewManager(s, queue, engine)
	reconciler := syncpkg.NewReconciler(s, rpc, nil)

	var persistTier *cache.PersistentTier
	if cfg.Cache.Persistent {
		persistTier = cache.NewPersistentTier(s.DB())
	}
	cacheMgr := cache.NewManager(persistTier, cache.Config{
		Capacity:     cfg.Cache.Capacity,
		SoftTTL:      cfg.Cache.SoftTTL,
		FetchTimeout: cfg.Cache.FetchTimeout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reconcile once at startup when a user is configured, so state from
	// other devices lands before the first drain pushes local changes up.
	if cfg.Remote.UserID != "" {
		go func() {
			if _, err := reconciler.Run(ctx, currentYear()); err != nil {
				logging.Warn().Err(err).Msg("Startup reconciliation failed")
			}
		}()
	}

	handler := api.NewHandler(manager, engine, cacheMgr, rpc, s)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddSyncService(services.NewSyncService(engine))
	tree.AddSyncService(services.NewCacheJanitorService(cacheMgr, cfg.Cache.SweepInterval))
	tree.AddAPIService(services.NewHTTPService(cfg.Server.Addr, handler.Router(), cfg.Server.ShutdownTimeout))

	errCh := tree.ServeBackground(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree exited with error")
		}
	}

	logging.Info().Msg("fosdem-syncd stopped")
}
