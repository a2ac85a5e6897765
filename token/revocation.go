package token

import (
	"context"
	"sync"
	"time"
)

// RevocationStore tracks revoked token ids until their natural expiry.
// Implementations must be safe for concurrent use; Revoke must be idempotent.
type RevocationStore interface {
	// Revoke marks id as revoked until expiresAt, after which the entry may
	// be pruned.
	Revoke(ctx context.Context, id string, expiresAt time.Time) error
	// IsRevoked reports whether id is currently revoked.
	IsRevoked(ctx context.Context, id string) (bool, error)
	// Prune drops entries whose expiry has passed.
	Prune(ctx context.Context, now time.Time) error
	// Len returns the number of live entries.
	Len(ctx context.Context) (int, error)
}

// memoryRevocations is the in-process RevocationStore. Reads take the shared
// lock so concurrent verifications do not serialize against each other.
type memoryRevocations struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// NewMemoryRevocationStore returns a process-local [RevocationStore].
func NewMemoryRevocationStore() RevocationStore {
	return &memoryRevocations{entries: make(map[string]time.Time)}
}

func (s *memoryRevocations) Revoke(_ context.Context, id string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = expiresAt
	return nil
}

func (s *memoryRevocations) IsRevoked(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[id]
	return ok, nil
}

func (s *memoryRevocations) Prune(_ context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, exp := range s.entries {
		if !exp.IsZero() && now.After(exp) {
			delete(s.entries, id)
		}
	}
	return nil
}

func (s *memoryRevocations) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}
