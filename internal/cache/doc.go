// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

// Package cache implements the two-tier stale-while-revalidate cache for the
// conference dataset and other remote-derived read models.
//
// Tier 1 is a bounded in-memory LRU; tier 2 is an optional BadgerDB-backed
// persistent tier that survives restarts. Every entry carries two deadlines:
// a soft expiry after which the entry is stale but still servable, and a hard
// expiry after which it is gone. A stale hit is served immediately while a
// single background revalidation refreshes the entry; a miss blocks on the
// fetch with a deadline and falls back to any hard-valid stale value when the
// fetch cannot complete in time.
package cache
