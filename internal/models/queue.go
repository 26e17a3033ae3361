// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

package models

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// EntityType identifies which record collection a queue entry mutates.
type EntityType string

const (
	EntityBookmark EntityType = "bookmark"
	EntityNote     EntityType = "note"
)

// Action is the remote operation a queue entry represents.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// SyncQueueEntry is one pending mutation awaiting delivery to the server.
//
// At most one entry exists per (EntityType, LocalID); a new enqueue for the
// same key replaces the prior entry rather than appending, so rapid toggling
// cannot grow the queue.
type SyncQueueEntry struct {
	ID         string     `json:"id"`
	EntityType EntityType `json:"entity_type"`
	Action     Action     `json:"action"`

	// LocalID is the local record key the mutation targets.
	LocalID string `json:"local_id"`

	// ServerID is carried for update/delete actions whose target is
	// already confirmed remotely. Empty for never-synced records.
	ServerID string `json:"server_id,omitempty"`

	// Payload is the serialized record state at enqueue time.
	Payload json.RawMessage `json:"payload,omitempty"`

	EnqueuedAt time.Time `json:"enqueued_at"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
}

// NewSyncQueueEntry builds a queue entry with a fresh id and timestamp.
func NewSyncQueueEntry(entity EntityType, action Action, localID string) *SyncQueueEntry {
	return &SyncQueueEntry{
		ID:         uuid.New().String(),
		EntityType: entity,
		Action:     action,
		LocalID:    localID,
		EnqueuedAt: time.Now().UTC(),
	}
}

// CoalesceKey is the deduplication key: one outstanding entry per key.
func (e *SyncQueueEntry) CoalesceKey() string {
	return string(e.EntityType) + ":" + e.LocalID
}

// SetPayload serializes v into the entry payload.
func (e *SyncQueueEntry) SetPayload(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal queue payload: %w", err)
	}
	e.Payload = data
	return nil
}

// UnmarshalPayload deserializes the payload into the given type.
func (e *SyncQueueEntry) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// Validate checks structural invariants before an entry is persisted.
func (e *SyncQueueEntry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("queue entry id cannot be empty")
	}
	if e.EntityType != EntityBookmark && e.EntityType != EntityNote {
		return fmt.Errorf("invalid queue entity type %q", e.EntityType)
	}
	if e.Action != ActionCreate && e.Action != ActionUpdate && e.Action != ActionDelete {
		return fmt.Errorf("invalid queue action %q", e.Action)
	}
	if e.LocalID == "" {
		return fmt.Errorf("queue entry local id cannot be empty")
	}
	return nil
}
