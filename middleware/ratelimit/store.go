package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Store tracks request counts per key within a fixed window ending at
// resetTime.
type Store interface {
	Get(ctx context.Context, key string) (count int, resetTime time.Time, exists bool, err error)
	Increment(ctx context.Context, key string, resetTime time.Time) (count int, err error)
}

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*entry
	stop chan struct{}
	once sync.Once
}

type entry struct {
	count     int
	resetTime time.Time
}

func NewMemoryStore() *MemoryStore {
	store := &MemoryStore{
		data: make(map[string]*entry),
		stop: make(chan struct{}),
	}

	go store.cleanup()

	return store
}

func (s *MemoryStore) Get(_ context.Context, key string) (int, time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, exists := s.data[key]; exists && time.Now().Before(e.resetTime) {
		return e.count, e.resetTime, true, nil
	}

	return 0, time.Time{}, false, nil
}

func (s *MemoryStore) Increment(_ context.Context, key string, resetTime time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, exists := s.data[key]; exists && time.Now().Before(e.resetTime) {
		e.count++
		return e.count, nil
	}

	s.data[key] = &entry{
		count:     1,
		resetTime: resetTime,
	}

	return 1, nil
}

// Close stops the background cleanup.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

func (s *MemoryStore) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.purge(time.Now())
		}
	}
}

func (s *MemoryStore) purge(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.data {
		if now.After(entry.resetTime) {
			delete(s.data, key)
		}
	}
}
