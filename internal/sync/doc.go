// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

// Package sync implements the local-first synchronization engine.
//
// The package contains three cooperating pieces:
//
//   - Manager: the mutation entrypoint the UI layer calls. A mutation is a
//     two-phase write: phase 1 commits the record to the local store and
//     enqueues a pending operation synchronously; phase 2 is the detached
//     background drain, whose only contract is that every queued entry is
//     eventually confirmed or re-queued.
//
//   - Engine: drains the sync queue against the companion API with bounded
//     retry and backoff, processing the entries of one drain pass
//     concurrently and aggregating their outcomes independently. A remote
//     404 is terminal: the object is already gone, so the entry (and any
//     now-meaningless local server pointer) is cleared instead of retried
//     forever.
//
//   - Reconciler: after authentication state changes, folds the server's
//     authoritative bookmark set into the local store. The fold is
//     one-directional and non-destructive: records the server doesn't know
//     about are exactly the not-yet-synced case and are left for the queue.
//
// Delivery is at-least-once; idempotency is guaranteed by deterministic
// server ids ({userID}_{year}_{slug}) and server-side upserts, so the client
// only has to avoid duplicate submission from itself. The queue's coalescing
// and its drain lock provide that.
package sync
