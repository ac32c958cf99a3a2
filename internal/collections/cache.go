package collections

import (
	"container/list"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"
)

// CacheEntry is one cached collection snapshot. Timestamp is the instant
// the entry was written, not when the upstream data was produced.
// Entries are replaced whole on refresh, never mutated in place.
type CacheEntry struct {
	Data      Snapshot
	Timestamp time.Time
	TTL       time.Duration
}

// StoreStats is a best-effort observability snapshot of the cache.
type StoreStats struct {
	TotalEntries    int   `json:"totalEntries"`
	ApproxSizeBytes int64 `json:"approxSizeBytes"`
	ExpiredCount    int   `json:"expiredCount"`
}

type StoreOptions struct {
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
	// Logger defaults to the process logger.
	Logger *log.Logger
}

// Store is the in-memory TTL cache. Expired entries are retained — they
// remain readable through GetStale as a degraded fallback — until an
// explicit invalidation removes them. Entries also sit on an
// insertion-order list so an entry-count cap (LRU) can be added without
// touching the contract.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*list.Element
	order   *list.List
	clock   func() time.Time
	logger  *log.Logger
}

type storedEntry struct {
	key   string
	entry CacheEntry
}

func NewStore(opts StoreOptions) *Store {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Store{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		clock:   clock,
		logger:  logger,
	}
}

// Get returns the raw entry without validity checks and with no side
// effects.
func (s *Store) Get(key string) (CacheEntry, bool) {
	if s == nil {
		return CacheEntry{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	element, ok := s.entries[key]
	if !ok {
		return CacheEntry{}, false
	}
	return element.Value.(*storedEntry).entry, true
}

// IsValid reports whether an entry exists and is within its TTL.
func (s *Store) IsValid(key string) bool {
	entry, ok := s.Get(key)
	if !ok {
		return false
	}
	return s.clock().Sub(entry.Timestamp) < entry.TTL
}

// GetFresh returns the data only while the entry is within its TTL. A
// missing entry and a stale one look the same to this caller.
func (s *Store) GetFresh(key string) (Snapshot, bool) {
	entry, ok := s.Get(key)
	if !ok || s.clock().Sub(entry.Timestamp) >= entry.TTL {
		return nil, false
	}
	return entry.Data, true
}

// GetStale returns the data regardless of validity. Only the degraded
// path of the fallback chain reads through this.
func (s *Store) GetStale(key string) (Snapshot, bool) {
	entry, ok := s.Get(key)
	if !ok {
		return nil, false
	}
	return entry.Data, true
}

// Set inserts or overwrites an entry, stamping it with the write time.
func (s *Store) Set(key string, data Snapshot, ttl time.Duration) {
	if s == nil {
		return
	}
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if element, ok := s.entries[key]; ok {
		element.Value = &storedEntry{key: key, entry: CacheEntry{Data: data, Timestamp: now, TTL: ttl}}
		s.order.MoveToBack(element)
		return
	}
	s.entries[key] = s.order.PushBack(&storedEntry{key: key, entry: CacheEntry{Data: data, Timestamp: now, TTL: ttl}})
}

// Len reports the entry count without walking or serializing anything.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Delete removes one entry.
func (s *Store) Delete(key string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(key)
}

// DeleteByPrefix removes every entry whose key starts with prefix and
// returns how many were removed.
func (s *Store) DeleteByPrefix(prefix string) int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			s.removeLocked(key)
			removed++
		}
	}
	return removed
}

// Clear drops every entry.
func (s *Store) Clear() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*list.Element)
	s.order.Init()
}

func (s *Store) removeLocked(key string) {
	if element, ok := s.entries[key]; ok {
		s.order.Remove(element)
		delete(s.entries, key)
	}
}

// Stats walks the store once. The size estimate serializes each entry's
// data; an entry that fails to serialize counts as zero bytes and is
// logged rather than failing the whole call.
func (s *Store) Stats() StoreStats {
	if s == nil {
		return StoreStats{}
	}
	now := s.clock()
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := StoreStats{TotalEntries: len(s.entries)}
	for key, element := range s.entries {
		entry := element.Value.(*storedEntry).entry
		if now.Sub(entry.Timestamp) >= entry.TTL {
			stats.ExpiredCount++
		}
		payload, err := json.Marshal(entry.Data)
		if err != nil {
			s.logger.Printf("collections: stats could not size entry %s: %v", key, err)
			continue
		}
		stats.ApproxSizeBytes += int64(len(payload))
	}
	return stats
}
