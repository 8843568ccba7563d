package cache

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// memoryEntry is one stored value in the in-process tier
type memoryEntry struct {
	value     json.RawMessage
	expiresAt time.Time
	tags      []string
}

// memoryTier is the in-process cache tier. Reads are lock-cheap; mutation
// is serialized under one mutex. A reverse index per tag supports atomic
// tag invalidation; prefix invalidation walks the key map.
type memoryTier struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	byTag   map[string]map[string]struct{}
	maxKeys int
}

func newMemoryTier(maxKeys int) *memoryTier {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	return &memoryTier{
		entries: make(map[string]memoryEntry),
		byTag:   make(map[string]map[string]struct{}),
		maxKeys: maxKeys,
	}
}

func (m *memoryTier) get(key string) (json.RawMessage, bool) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		m.mu.Lock()
		m.removeLocked(key)
		m.mu.Unlock()
		return nil, false
	}
	return entry.value, true
}

func (m *memoryTier) set(key string, value json.RawMessage, ttl time.Duration, tags []string) {
	if ttl <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// TTLs are monotonic: never replace an entry with a shorter deadline
	expiresAt := time.Now().Add(ttl)
	if existing, ok := m.entries[key]; ok && existing.expiresAt.After(expiresAt) {
		expiresAt = existing.expiresAt
	}

	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxKeys {
		m.evictOneLocked()
	}

	m.entries[key] = memoryEntry{value: value, expiresAt: expiresAt, tags: tags}
	for _, tag := range tags {
		if m.byTag[tag] == nil {
			m.byTag[tag] = make(map[string]struct{})
		}
		m.byTag[tag][key] = struct{}{}
	}
}

func (m *memoryTier) delete(key string) {
	m.mu.Lock()
	m.removeLocked(key)
	m.mu.Unlock()
}

func (m *memoryTier) invalidatePrefix(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			m.removeLocked(key)
			count++
		}
	}
	return count
}

func (m *memoryTier) invalidateTag(tag string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := m.byTag[tag]
	count := 0
	for key := range keys {
		m.removeLocked(key)
		count++
	}
	delete(m.byTag, tag)
	return count
}

// sweep drops expired entries; called by the janitor
func (m *memoryTier) sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	count := 0
	for key, entry := range m.entries {
		if now.After(entry.expiresAt) {
			m.removeLocked(key)
			count++
		}
	}
	return count
}

func (m *memoryTier) size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// removeLocked deletes the entry and its tag index rows. Caller holds mu.
func (m *memoryTier) removeLocked(key string) {
	entry, ok := m.entries[key]
	if !ok {
		return
	}
	delete(m.entries, key)
	for _, tag := range entry.tags {
		if keys := m.byTag[tag]; keys != nil {
			delete(keys, key)
			if len(keys) == 0 {
				delete(m.byTag, tag)
			}
		}
	}
}

// evictOneLocked drops the entry closest to expiry to make room.
// Caller holds mu.
func (m *memoryTier) evictOneLocked() {
	var victim string
	var earliest time.Time
	for key, entry := range m.entries {
		if victim == "" || entry.expiresAt.Before(earliest) {
			victim = key
			earliest = entry.expiresAt
		}
	}
	if victim != "" {
		m.removeLocked(victim)
	}
}
