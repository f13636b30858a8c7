package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps revoked session IDs and view state in process memory.
// Used by tests and by the single-process TUI when no state file is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
	values  map[string]string
	now     func() time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		revoked: make(map[string]time.Time),
		values:  make(map[string]string),
		now:     time.Now,
	}
}

// InvalidateToken marks a session token as revoked until expiry elapses.
func (s *MemoryStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	until := now.Add(expiry)
	if current, ok := s.revoked[tokenID]; ok && current.After(until) {
		until = current
	}
	s.revoked[tokenID] = until

	// Expired entries are dropped lazily here instead of by a timer goroutine per token.
	for id, exp := range s.revoked {
		if !exp.After(now) {
			delete(s.revoked, id)
		}
	}
	return nil
}

// IsTokenInvalidated checks if a token is invalidated
func (s *MemoryStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	until, ok := s.revoked[tokenID]
	if !ok {
		return false, nil
	}
	return until.After(s.now()), nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return nil
}
