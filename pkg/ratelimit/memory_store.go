package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start time.Time
	end   time.Time
	count int
}

// MemoryStore is an in-memory counter backend. Exact under its lock within a
// single process; multi-process deployments should use RedisStore.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
}

// NewMemoryStore creates an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*window)}
}

func (s *MemoryStore) Incr(ctx context.Context, key string, windowStart, windowEnd time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !w.start.Equal(windowStart) {
		// A counter from a previous day is stale; start fresh.
		w = &window{start: windowStart, end: windowEnd}
		s.windows[key] = w
	}
	w.count++
	return w.count, nil
}

func (s *MemoryStore) Count(ctx context.Context, key string, windowStart time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !w.start.Equal(windowStart) {
		return 0, nil
	}
	return w.count, nil
}

func (s *MemoryStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for key, w := range s.windows {
		if !w.end.After(now) {
			delete(s.windows, key)
			purged++
		}
	}
	return purged, nil
}
