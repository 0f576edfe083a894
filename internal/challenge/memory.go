package challenge

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore implements Store in process memory. Intended for development
// and tests; pending challenges do not survive a restart, which the
// protocols tolerate (callers re-request a code).
type MemoryStore struct {
	mu    sync.Mutex
	cache *gocache.Cache
}

// NewMemoryStore creates a store whose expired entries are purged every
// minute.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: gocache.New(gocache.NoExpiration, time.Minute),
	}
}

func (s *MemoryStore) Put(_ context.Context, key string, rec Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Set(key, rec, ttl)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache.Get(key)
	if !ok {
		return Record{}, ErrNotFound
	}
	return v.(Record), nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Delete(key)
	return nil
}

// Consume holds the store lock across the compare-and-delete so only one of
// any concurrent correct-code submissions can succeed.
func (s *MemoryStore) Consume(_ context.Context, key, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.cache.Get(key)
	if !ok {
		return ErrNotFound
	}
	rec := v.(Record)
	if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(code)) != 1 {
		return ErrMismatch
	}
	s.cache.Delete(key)
	return nil
}
