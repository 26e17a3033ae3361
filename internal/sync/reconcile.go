// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

package sync

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/logging"
	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/metrics"
	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/models"
	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/store"
)

// ReconcileOutcome reports what a reconciliation pass did.
type ReconcileOutcome string

const (
	ReconcileApplied ReconcileOutcome = "applied"
	ReconcileSkipped ReconcileOutcome = "skipped"
	ReconcileFailed  ReconcileOutcome = "failed"
)

// ReconcileResult summarizes a single non-destructive server-to-local fold.
type ReconcileResult struct {
	Outcome   ReconcileOutcome `json:"outcome"`
	Created   int              `json:"created"`
	Updated   int              `json:"updated"`
	Unchanged int              `json:"unchanged"`
	LocalOnly int              `json:"local_only"`
}

// Guards holds reconciliation concurrency state. It is owned by the caller
// that wires the reconciler so restarts reuse the same guard.
type Guards struct {
	reconciling atomic.Bool
}

// Reconciler folds the server's authoritative bookmark set into the local
// store after authentication or reconnect. The fold never deletes local
// records: a bookmark missing remotely is treated as not-yet-synced, and the
// drain path pushes it up rather than reconciliation tearing it down.
type Reconciler struct {
	store  *store.Store
	client RemoteClient
	guards *Guards
}

// NewReconciler creates a reconciler over the given store and remote client.
func NewReconciler(s *store.Store, client RemoteClient, guards *Guards) *Reconciler {
	if guards == nil {
		guards = &Guards{}
	}
	return &Reconciler{store: s, client: client, guards: guards}
}

// Run fetches the server's bookmarks for a year and reconciles them into the
// local store.
func (r *Reconciler) Run(ctx context.Context, year int) (*ReconcileResult, error) {
	remote, err := r.client.FetchBookmarks(ctx, year)
	if err != nil {
		metrics.RecordReconcileRun(string(ReconcileFailed))
		return &ReconcileResult{Outcome: ReconcileFailed}, fmt.Errorf("fetch bookmarks: %w", err)
	}
	return r.Reconcile(ctx, year, remote)
}

// Reconcile applies one server snapshot to the local store. Only one pass
// runs at a time; a concurrent call is skipped, not queued.
func (r *Reconciler) Reconcile(ctx context.Context, year int, remote []models.RemoteBookmark) (*ReconcileResult, error) {
	if !r.guards.reconciling.CompareAndSwap(false, true) {
		logging.Debug().Int("year", year).Msg("Reconciliation already in progress, skipping")
		metrics.RecordReconcileRun(string(ReconcileSkipped))
		return &ReconcileResult{Outcome: ReconcileSkipped}, nil
	}
	defer r.guards.reconciling.Store(false)

	start := time.Now()

	// The server keys bookmarks by {user}_{year}_{slug}, so two remote
	// records sharing a slug within a year means the snapshot is corrupt.
	bySlug := make(map[string]models.RemoteBookmark, len(remote))
	for _, rb := range remote {
		if _, dup := bySlug[rb.Slug]; dup {
			metrics.RecordReconcileRun(string(ReconcileFailed))
			return &ReconcileResult{Outcome: ReconcileFailed}, fmt.Errorf("duplicate slug %q in server snapshot for year %d", rb.Slug, year)
		}
		bySlug[rb.Slug] = rb
	}

	local, err := r.store.ListBookmarks(ctx, year)
	if err != nil {
		metrics.RecordReconcileRun(string(ReconcileFailed))
		return &ReconcileResult{Outcome: ReconcileFailed}, fmt.Errorf("list local bookmarks: %w", err)
	}

	localBySlug := make(map[string]*models.Bookmark, len(local))
	for _, lb := range local {
		localBySlug[lb.Slug] = lb
	}

	result := &ReconcileResult{Outcome: ReconcileApplied}

	for slug, rb := range bySlug {
		lb, ok := localBySlug[slug]
		if !ok {
			created := bookmarkFromRemote(rb)
			if _, err := r.store.PutBookmark(ctx, created); err != nil {
				metrics.RecordReconcileRun(string(ReconcileFailed))
				return &ReconcileResult{Outcome: ReconcileFailed}, fmt.Errorf("create bookmark %s: %w", created.ID, err)
			}
			result.Created++
			continue
		}

		if applyRemote(lb, rb) {
			if _, err := r.store.PutBookmark(ctx, lb); err != nil {
				metrics.RecordReconcileRun(string(ReconcileFailed))
				return &ReconcileResult{Outcome: ReconcileFailed}, fmt.Errorf("update bookmark %s: %w", lb.ID, err)
			}
			result.Updated++
		} else {
			result.Unchanged++
		}
	}

	// Local-only records are left alone; the pending queue owns their fate.
	for slug := range localBySlug {
		if _, ok := bySlug[slug]; !ok {
			result.LocalOnly++
		}
	}

	logging.Info().
		Int("year", year).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("unchanged", result.Unchanged).
		Int("local_only", result.LocalOnly).
		Dur("duration", time.Since(start)).
		Msg("Reconciliation complete")
	metrics.RecordReconcileRun(string(ReconcileApplied))
	return result, nil
}

// applyRemote overwrites the server-owned fields of a local bookmark where
// they disagree with the server's record. Returns true when anything changed.
func applyRemote(lb *models.Bookmark, rb models.RemoteBookmark) bool {
	changed := false
	if lb.ServerID != rb.ID {
		lb.ServerID = rb.ID
		changed = true
	}
	if lb.Status != rb.Status {
		lb.Status = rb.Status
		changed = true
	}
	if lb.Type != rb.Type {
		lb.Type = rb.Type
		changed = true
	}
	return changed
}

func bookmarkFromRemote(rb models.RemoteBookmark) *models.Bookmark {
	now := time.Now().UTC()
	created := rb.CreatedAt
	if created.IsZero() {
		created = now
	}
	return &models.Bookmark{
		ID:               models.LocalBookmarkID(rb.Year, rb.Slug),
		Year:             rb.Year,
		Slug:             rb.Slug,
		Type:             rb.Type,
		Status:           rb.Status,
		ServerID:         rb.ID,
		Priority:         rb.Priority,
		NotificationSent: rb.NotificationSent,
		Watching:         rb.Watching,
		CreatedAt:        created,
		UpdatedAt:        now,
	}
}

// BookmarkView is a bookmark annotated with its server-side existence, for
// surfaces that show sync state without mutating anything.
type BookmarkView struct {
	models.Bookmark
	ExistsOnServer bool `json:"exists_on_server"`
}

// MergedView annotates local bookmarks with whether the server snapshot also
// holds them. Pure; neither input set is modified.
func MergedView(local []*models.Bookmark, remote []models.RemoteBookmark) []BookmarkView {
	serverSlugs := make(map[string]struct{}, len(remote))
	for _, rb := range remote {
		serverSlugs[rb.Slug] = struct{}{}
	}

	views := make([]BookmarkView, 0, len(local))
	for _, lb := range local {
		_, ok := serverSlugs[lb.Slug]
		views = append(views, BookmarkView{Bookmark: *lb, ExistsOnServer: ok})
	}
	return views
}
