// Package cache keeps recently fetched thread histories in memory.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"threadsync/internal/log"
)

// DefaultCleanupInterval is how often expired entries are purged.
const DefaultCleanupInterval = 5 * time.Minute

// Memory is a typed view over a go-cache store. useCase only labels log lines.
type Memory[V any] struct {
	useCase string
	store   *gocache.Cache
}

// NewMemory creates a store whose entries live for ttl.
func NewMemory[V any](useCase string, ttl, cleanupInterval time.Duration) *Memory[V] {
	return &Memory[V]{
		useCase: useCase,
		store:   gocache.New(ttl, cleanupInterval),
	}
}

// Get returns the value under key if present and unexpired.
func (m *Memory[V]) Get(key string) (V, bool) {
	var zero V

	raw, found := m.store.Get(key)
	if !found {
		return zero, false
	}

	v, ok := raw.(V)
	if !ok {
		log.Error(log.CatCache, "wrong type in cache entry", "use_case", m.useCase, "key", key)
		return zero, false
	}

	log.Debug(log.CatCache, "cache hit", "use_case", m.useCase, "key", key)
	return v, true
}

// Set stores value under key with the store's default expiration.
func (m *Memory[V]) Set(key string, value V) {
	m.store.SetDefault(key, value)
}

// Delete removes keys.
func (m *Memory[V]) Delete(keys ...string) {
	for _, key := range keys {
		m.store.Delete(key)
	}
}

// Flush drops every entry.
func (m *Memory[V]) Flush() {
	m.store.Flush()
}

// Len counts stored entries, including expired ones not yet purged.
func (m *Memory[V]) Len() int {
	return m.store.ItemCount()
}
