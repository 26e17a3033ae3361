// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

package services

import (
	"context"
	"time"

	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/logging"
)

// Sweeper drops hard-expired cache entries.
type Sweeper interface {
	Sweep() int
}

// CacheJanitorService periodically sweeps the cache's memory tier so
// hard-expired entries on cold keys do not linger until their next lookup.
type CacheJanitorService struct {
	sweeper  Sweeper
	interval time.Duration
}

// NewCacheJanitorService wraps the cache manager's sweep as a supervised
// service.
func NewCacheJanitorService(sweeper Sweeper, interval time.Duration) *CacheJanitorService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &CacheJanitorService{sweeper: sweeper, interval: interval}
}

// Serve implements suture.Service.
func (s *CacheJanitorService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if removed := s.sweeper.Sweep(); removed > 0 {
				logging.Debug().Int("removed", removed).Msg("Cache janitor swept expired entries")
			}
		}
	}
}

// String names the service in supervision events.
func (s *CacheJanitorService) String() string {
	return "cache-janitor"
}
