// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

// Package services adapts the daemon's long-running components to suture's
// Serve lifecycle.
package services

import (
	"context"
	"fmt"
)

// StartStopEngine matches the sync engine's lifecycle.
type StartStopEngine interface {
	Start(ctx context.Context) error
	Stop() error
}

// SyncService runs the background sync engine under supervision: Start on
// Serve, block until the context ends, then Stop and wait for the in-flight
// drain to finish.
type SyncService struct {
	engine StartStopEngine
}

// NewSyncService wraps the sync engine as a supervised service.
func NewSyncService(engine StartStopEngine) *SyncService {
	return &SyncService{engine: engine}
}

// Serve implements suture.Service.
func (s *SyncService) Serve(ctx context.Context) error {
	if err := s.engine.Start(ctx); err != nil {
		return fmt.Errorf("sync engine start failed: %w", err)
	}

	<-ctx.Done()

	if err := s.engine.Stop(); err != nil {
		return fmt.Errorf("sync engine stop failed: %w", err)
	}
	return ctx.Err()
}

// String names the service in supervision events.
func (s *SyncService) String() string {
	return "sync-engine"
}
