// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

package cache

import (
	"sync"
	"time"
)

// Entry is one cached value with its two deadlines. SoftExpiresAt is always
// at or before ExpiresAt; past ExpiresAt the entry is treated as absent.
type Entry struct {
	Data          []byte    `json:"data"`
	SoftExpiresAt time.Time `json:"soft_expires_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Stale reports whether the entry is past its soft deadline.
func (e *Entry) Stale(now time.Time) bool {
	return now.After(e.SoftExpiresAt)
}

// Expired reports whether the entry is past its hard deadline.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

type lruNode struct {
	key   string
	entry Entry
	prev  *lruNode
	next  *lruNode
}

// MemoryTier is a thread-safe bounded LRU holding cache entries with lazy
// expiry. A doubly-linked list keeps recency order and a map gives O(1)
// lookup; eviction removes the least recently used entry.
//
// Hard-expired entries are also collected by a time-gated sweep so a cold key
// does not pin dead data until its next lookup.
type MemoryTier struct {
	mu sync.Mutex

	capacity int
	items    map[string]*lruNode

	// head.next is most recently used, tail.prev least recently used.
	head *lruNode
	tail *lruNode

	sweepEvery time.Duration
	lastSweep  time.Time
}

// DefaultCapacity bounds the in-memory tier when no capacity is configured.
const DefaultCapacity = 1024

// NewMemoryTier creates the in-memory tier with the given capacity.
func NewMemoryTier(capacity int) *MemoryTier {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	t := &MemoryTier{
		capacity:   capacity,
		items:      make(map[string]*lruNode, capacity),
		head:       &lruNode{},
		tail:       &lruNode{},
		sweepEvery: time.Minute,
		lastSweep:  time.Now(),
	}
	t.head.next = t.tail
	t.tail.prev = t.head
	return t
}

// Get returns the entry for key. Hard-expired entries are removed on access
// and reported as absent; stale-but-valid entries are returned as-is, the
// caller decides what staleness means.
func (t *MemoryTier) Get(key string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, ok := t.items[key]
	if !ok {
		return Entry{}, false
	}

	now := time.Now()
	if node.entry.Expired(now) {
		t.unlink(node)
		delete(t.items, key)
		return Entry{}, false
	}

	t.moveToFront(node)
	return node.entry, true
}

// Set stores an entry, evicting the least recently used entry at capacity.
func (t *MemoryTier) Set(key string, entry Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.maybeSweep(time.Now())

	if node, ok := t.items[key]; ok {
		node.entry = entry
		t.moveToFront(node)
		return
	}

	if len(t.items) >= t.capacity {
		lru := t.tail.prev
		if lru != t.head {
			t.unlink(lru)
			delete(t.items, lru.key)
		}
	}

	node := &lruNode{key: key, entry: entry}
	t.items[key] = node
	t.pushFront(node)
}

// Delete removes the entry for key if present.
func (t *MemoryTier) Delete(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if node, ok := t.items[key]; ok {
		t.unlink(node)
		delete(t.items, key)
	}
}

// Len returns the current number of entries, expired or not.
func (t *MemoryTier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// Sweep removes all hard-expired entries now, regardless of the time gate.
// Returns the number of entries removed.
func (t *MemoryTier) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sweepLocked(time.Now())
}

// maybeSweep runs a sweep if enough time has passed since the last one, so
// steady write traffic keeps the tier clean without a sweep per operation.
func (t *MemoryTier) maybeSweep(now time.Time) {
	if now.Sub(t.lastSweep) < t.sweepEvery {
		return
	}
	t.sweepLocked(now)
}

func (t *MemoryTier) sweepLocked(now time.Time) int {
	removed := 0
	for key, node := range t.items {
		if node.entry.Expired(now) {
			t.unlink(node)
			delete(t.items, key)
			removed++
		}
	}
	t.lastSweep = now
	return removed
}

func (t *MemoryTier) pushFront(node *lruNode) {
	node.prev = t.head
	node.next = t.head.next
	t.head.next.prev = node
	t.head.next = node
}

func (t *MemoryTier) unlink(node *lruNode) {
	node.prev.next = node.next
	node.next.prev = node.prev
	node.prev = nil
	node.next = nil
}

func (t *MemoryTier) moveToFront(node *lruNode) {
	t.unlink(node)
	t.pushFront(node)
}
