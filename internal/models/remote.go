// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

package models

import "time"

// RemoteBookmark is the server's authoritative projection of a bookmark,
// keyed by the deterministic server id and carrying ownership.
type RemoteBookmark struct {
	ID     string         `json:"id"`
	UserID string         `json:"user_id"`
	Year   int            `json:"year"`
	Slug   string         `json:"slug"`
	Type   BookmarkType   `json:"type"`
	Status BookmarkStatus `json:"status"`

	Priority         int  `json:"priority,omitempty"`
	NotificationSent bool `json:"notification_sent,omitempty"`
	Watching         bool `json:"watching,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RemoteNote is the server's authoritative projection of a note.
type RemoteNote struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	Year    int    `json:"year"`
	Slug    string `json:"slug"`
	Content string `json:"content"`
	Time    int    `json:"time,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConferenceMeta is the marker block every valid conference dataset carries
// at the top level. A response without it is rejected at the RPC boundary.
type ConferenceMeta struct {
	Acronym string `json:"acronym"`
	Title   string `json:"title"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// ScheduleEvent is one session in the conference dataset.
type ScheduleEvent struct {
	ID       string `json:"id"`
	Slug     string `json:"slug"`
	Title    string `json:"title"`
	Track    string `json:"track"`
	Room     string `json:"room"`
	Day      string `json:"day"`
	Start    string `json:"start"`
	Duration string `json:"duration"`
}

// ScheduleTrack is one track in the conference dataset.
type ScheduleTrack struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
	Room string `json:"room"`
	Day  string `json:"day"`
}

// ConferenceDataset is the large, slow-changing read-only dataset served
// through the cache manager.
type ConferenceDataset struct {
	Conference ConferenceMeta  `json:"conference"`
	Events     []ScheduleEvent `json:"events"`
	Tracks     []ScheduleTrack `json:"tracks"`
}
