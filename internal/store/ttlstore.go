// Package store provides a generic in-memory store with TTL support.
package store

import (
	"sync"
	"time"
)

// Entry wraps a value with expiration metadata
type Entry[T any] struct {
	Value     T
	ExpiresAt time.Time
}

// IsExpired returns true if the entry has expired
func (e *Entry[T]) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// TTLStore is a generic in-memory store with TTL support and automatic cleanup.
type TTLStore[K comparable, V any] struct {
	mu       sync.RWMutex
	items    map[K]*Entry[V]
	stopCh   chan struct{}
	stopOnce sync.Once
	interval time.Duration
	onEvict  func(key K, value V) // Optional callback called when items expire
}

// New creates a new TTL store. The cleanup goroutine runs every
// cleanupInterval to remove expired entries.
func New[K comparable, V any](cleanupInterval time.Duration) *TTLStore[K, V] {
	s := &TTLStore[K, V]{
		items:    make(map[K]*Entry[V]),
		stopCh:   make(chan struct{}),
		interval: cleanupInterval,
	}
	go s.cleanupLoop()
	return s
}

// SetOnEvict sets the callback called when items expire during cleanup
// (not on manual Delete).
func (s *TTLStore[K, V]) SetOnEvict(fn func(key K, value V)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvict = fn
}

// PutIfAbsent stores a value with the given TTL unless a live entry already
// exists for the key. Returns false if the key was already present.
func (s *TTLStore[K, V]) PutIfAbsent(key K, value V, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, exists := s.items[key]; exists && !entry.IsExpired() {
		return false
	}
	s.items[key] = &Entry[V]{
		Value:     value,
		ExpiresAt: time.Now().Add(ttl),
	}
	return true
}

// Get retrieves a value by key. Returns the value and true if found and not expired.
func (s *TTLStore[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.items[key]
	if !exists || entry.IsExpired() {
		var zero V
		return zero, false
	}
	return entry.Value, true
}

// Delete removes a key from the store. Returns true if a key was removed.
func (s *TTLStore[K, V]) Delete(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[key]; exists {
		delete(s.items, key)
		return true
	}
	return false
}

// Len returns the number of non-expired items
func (s *TTLStore[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, entry := range s.items {
		if !entry.IsExpired() {
			count++
		}
	}
	return count
}

// Clear discards all entries without invoking the eviction callback.
func (s *TTLStore[K, V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[K]*Entry[V])
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *TTLStore[K, V]) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *TTLStore[K, V]) cleanupLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.stopCh:
			return
		}
	}
}

func (s *TTLStore[K, V]) evictExpired() {
	s.mu.Lock()
	var evicted []struct {
		key   K
		value V
	}
	for key, entry := range s.items {
		if entry.IsExpired() {
			evicted = append(evicted, struct {
				key   K
				value V
			}{key, entry.Value})
			delete(s.items, key)
		}
	}
	onEvict := s.onEvict
	s.mu.Unlock()

	// Callback outside the lock so it may call back into the store.
	if onEvict != nil {
		for _, e := range evicted {
			onEvict(e.key, e.value)
		}
	}
}
