package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultTTL is the fallback TTL when Put is called without one
	DefaultTTL = 30 * time.Second

	// DefaultCapacity bounds the number of stored entries
	DefaultCapacity = 10000
)

// Config holds store configuration.
type Config struct {
	// Capacity is the maximum number of entries (0 = unbounded)
	Capacity int

	// DefaultTTL applies when Put receives ttl <= 0
	DefaultTTL time.Duration

	// Now overrides the clock (tests)
	Now func() time.Time
}

// DefaultConfig returns a default store configuration.
func DefaultConfig() Config {
	return Config{
		Capacity:   DefaultCapacity,
		DefaultTTL: DefaultTTL,
	}
}

// Stats is a point-in-time view of the store.
type Stats struct {
	Entries  int   `json:"entries"`
	Bytes    int64 `json:"bytes"`
	Capacity int   `json:"capacity"`
}

type slot struct {
	entry *Entry
	elem  *list.Element
}

// Store is the process-wide response cache. It is safe for concurrent use;
// lookups share a read lock.
type Store struct {
	mu     sync.RWMutex
	items  map[string]*slot
	order  *list.List // insertion order, oldest at the front
	bytes  int64
	cfg    Config
	now    func() time.Time
	logger zerolog.Logger
}

// NewStore creates an empty store.
func NewStore(cfg Config, logger zerolog.Logger) *Store {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.Capacity < 0 {
		cfg.Capacity = 0
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		items:  make(map[string]*slot),
		order:  list.New(),
		cfg:    cfg,
		now:    now,
		logger: logger,
	}
}

// Now returns the store clock's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// Get returns a non-expired entry for key.
// An expired entry found during lookup is removed.
func (s *Store) Get(key string) (*Entry, bool) {
	now := s.now()

	s.mu.RLock()
	sl, ok := s.items[key]
	s.mu.RUnlock()

	if !ok {
		CacheMisses.Inc()
		return nil, false
	}

	if sl.entry.ExpiredAt(now) {
		s.mu.Lock()
		// Only drop the entry we inspected; a concurrent Put may have refreshed it.
		if cur, ok := s.items[key]; ok && cur == sl {
			s.removeLocked(key, cur)
			CacheExpired.Inc()
		}
		s.updateGaugesLocked()
		s.mu.Unlock()

		CacheMisses.Inc()
		return nil, false
	}

	CacheHits.Inc()
	return sl.entry, true
}

// Put serializes body, fingerprints it and stores it under key for ttl.
// If the store exceeds its capacity the oldest entries are evicted.
func (s *Store) Put(key string, body any, ttl time.Duration) (*Entry, error) {
	data, err := Serialize(body)
	if err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return nil, err
	}
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}
	etag := Fingerprint(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry := &Entry{
		Key:       key,
		Data:      data,
		ETag:      etag,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	if old, ok := s.items[key]; ok {
		s.removeLocked(key, old)
	}
	s.items[key] = &slot{entry: entry, elem: s.order.PushBack(key)}
	s.bytes += int64(len(data))

	for s.cfg.Capacity > 0 && len(s.items) > s.cfg.Capacity {
		front := s.order.Front()
		oldest := front.Value.(string)
		s.removeLocked(oldest, s.items[oldest])
		CacheEvictions.Inc()
	}
	s.updateGaugesLocked()

	return entry, nil
}

// Delete removes a single key.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.items[key]
	if !ok {
		return false
	}
	s.removeLocked(key, sl)
	s.updateGaugesLocked()
	return true
}

// Invalidate removes every key selected by pattern and returns how many were removed.
// See Pattern for the accepted syntax. Patterns that fail to compile match nothing.
func (s *Store) Invalidate(pattern string) int {
	p, err := CompilePattern(pattern)
	if err != nil {
		s.logger.Warn().Err(err).Str("pattern", pattern).Msg("Ignoring invalid invalidation pattern")
		CacheErrors.WithLabelValues("invalidate").Inc()
		return 0
	}
	return s.InvalidatePattern(p)
}

// InvalidatePattern removes every key selected by a compiled pattern.
func (s *Store) InvalidatePattern(p Pattern) int {
	if p.IsExact() {
		if s.Delete(p.String()) {
			CacheInvalidated.Add(1)
			return 1
		}
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, sl := range s.items {
		if p.Match(key) {
			s.removeLocked(key, sl)
			removed++
		}
	}
	s.updateGaugesLocked()
	CacheInvalidated.Add(float64(removed))

	if removed > 0 {
		s.logger.Debug().Str("pattern", p.String()).Int("removed", removed).Msg("Invalidated cache entries")
	}
	return removed
}

// Clear drops every entry.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.items)
	s.items = make(map[string]*slot)
	s.order.Init()
	s.bytes = 0
	s.updateGaugesLocked()
	return n
}

// Len returns the number of stored entries, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Keys returns a snapshot of the stored keys, oldest first.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.items))
	for e := s.order.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(string))
	}
	return keys
}

// Stats returns the current size of the store.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Entries:  len(s.items),
		Bytes:    s.bytes,
		Capacity: s.cfg.Capacity,
	}
}

// sweep removes expired entries. Candidates are collected from a snapshot
// under the read lock, then deleted in batches so the write lock is held
// for at most batch deletions at a time.
func (s *Store) sweep(batch int) int {
	if batch <= 0 {
		batch = 256
	}
	now := s.now()

	s.mu.RLock()
	candidates := make([]string, 0)
	for key, sl := range s.items {
		if sl.entry.ExpiredAt(now) {
			candidates = append(candidates, key)
		}
	}
	s.mu.RUnlock()

	removed := 0
	for start := 0; start < len(candidates); start += batch {
		end := start + batch
		if end > len(candidates) {
			end = len(candidates)
		}

		s.mu.Lock()
		for _, key := range candidates[start:end] {
			// Re-check: the key may have been refreshed since the snapshot.
			if sl, ok := s.items[key]; ok && sl.entry.ExpiredAt(now) {
				s.removeLocked(key, sl)
				removed++
			}
		}
		s.updateGaugesLocked()
		s.mu.Unlock()
	}

	CacheExpired.Add(float64(removed))
	return removed
}

func (s *Store) removeLocked(key string, sl *slot) {
	delete(s.items, key)
	s.order.Remove(sl.elem)
	s.bytes -= int64(len(sl.entry.Data))
}

func (s *Store) updateGaugesLocked() {
	CacheEntries.Set(float64(len(s.items)))
	CacheSize.Set(float64(s.bytes))
}
