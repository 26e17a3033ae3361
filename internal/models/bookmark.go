// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

// Package models defines the shared data types of the sync core: locally
// persisted records, sync queue entries, the server's remote projections, and
// the normalized RPC result type every transport response is folded into.
package models

import (
	"fmt"
	"time"
)

// BookmarkType distinguishes what a bookmark points at.
type BookmarkType string

const (
	BookmarkTypeEvent BookmarkType = "event"
	BookmarkTypeTrack BookmarkType = "track"
)

// BookmarkStatus is the user-visible favourite state.
type BookmarkStatus string

const (
	BookmarkStatusFavourited   BookmarkStatus = "favourited"
	BookmarkStatusUnfavourited BookmarkStatus = "unfavourited"
)

// Bookmark is the locally persisted record for a favourited event or track.
//
// ID is the deterministic local key "{year}_{slug}". ServerID is empty until
// the record is confirmed to exist remotely; once a user is authenticated, a
// bookmark with neither a ServerID nor a pending queue entry is a bug state —
// every record must be either synced or queued.
type Bookmark struct {
	ID     string         `json:"id"`
	Year   int            `json:"year"`
	Slug   string         `json:"slug"`
	Type   BookmarkType   `json:"type"`
	Status BookmarkStatus `json:"status"`

	// ServerID is the server-assigned identifier, present only after a
	// successful remote create or a reconciliation pass.
	ServerID string `json:"server_id,omitempty"`

	// Mutable presentation fields, part of the update allow-list.
	Priority         int  `json:"priority,omitempty"`
	NotificationSent bool `json:"notification_sent,omitempty"`
	Watching         bool `json:"watching,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LocalBookmarkID builds the deterministic local key for a bookmark.
func LocalBookmarkID(year int, slug string) string {
	return fmt.Sprintf("%d_%s", year, slug)
}

// ServerBookmarkID builds the deterministic server-side identifier. The same
// rule is applied by the server on create, so a retried create upserts instead
// of duplicating, and reconciliation can match records by identity.
func ServerBookmarkID(userID string, year int, slug string) string {
	return fmt.Sprintf("%s_%d_%s", userID, year, slug)
}

// Validate checks structural invariants before a bookmark is persisted.
func (b *Bookmark) Validate() error {
	if b.Year <= 0 {
		return fmt.Errorf("bookmark year must be positive, got %d", b.Year)
	}
	if b.Slug == "" {
		return fmt.Errorf("bookmark slug cannot be empty")
	}
	if b.Type != BookmarkTypeEvent && b.Type != BookmarkTypeTrack {
		return fmt.Errorf("invalid bookmark type %q", b.Type)
	}
	if b.Status != BookmarkStatusFavourited && b.Status != BookmarkStatusUnfavourited {
		return fmt.Errorf("invalid bookmark status %q", b.Status)
	}
	if want := LocalBookmarkID(b.Year, b.Slug); b.ID != want {
		return fmt.Errorf("bookmark id %q does not match %q", b.ID, want)
	}
	return nil
}

// BookmarkUpdate carries the allow-listed mutable fields for a remote update.
// Nil pointers mean "leave unchanged"; no other field of a confirmed bookmark
// is ever sent in an update call.
type BookmarkUpdate struct {
	Status           *BookmarkStatus `json:"status,omitempty"`
	Priority         *int            `json:"priority,omitempty"`
	NotificationSent *bool           `json:"notification_sent,omitempty"`
	Watching         *bool           `json:"watching,omitempty"`
}

// UpdateFromBookmark builds the full allow-listed update payload for a local
// bookmark's current state.
func UpdateFromBookmark(b *Bookmark) BookmarkUpdate {
	status := b.Status
	priority := b.Priority
	notified := b.NotificationSent
	watching := b.Watching
	return BookmarkUpdate{
		Status:           &status,
		Priority:         &priority,
		NotificationSent: &notified,
		Watching:         &watching,
	}
}
