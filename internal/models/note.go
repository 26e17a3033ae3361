// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Note is a locally authored note attached to a session.
//
// Unlike bookmarks, notes have no natural key, so ID is a temporary local
// UUID until the server confirms the record and ServerID is stamped.
type Note struct {
	ID      string `json:"id"`
	Year    int    `json:"year"`
	Slug    string `json:"slug"`
	Content string `json:"content"`

	// Time is the position in seconds within the session recording the
	// note refers to. Zero means the note is not time-anchored.
	Time int `json:"time,omitempty"`

	ServerID string `json:"server_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewNoteID generates a temporary local note identifier.
func NewNoteID() string {
	return uuid.New().String()
}

// Validate checks structural invariants before a note is persisted.
func (n *Note) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("note id cannot be empty")
	}
	if n.Year <= 0 {
		return fmt.Errorf("note year must be positive, got %d", n.Year)
	}
	if n.Slug == "" {
		return fmt.Errorf("note slug cannot be empty")
	}
	if n.Content == "" {
		return fmt.Errorf("note content cannot be empty")
	}
	if n.Time < 0 {
		return fmt.Errorf("note time cannot be negative, got %d", n.Time)
	}
	return nil
}
