package replay

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps replay records in process memory. State does not survive
// restarts; suitable for single-instance deployments and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time // key -> expiry
	done    chan struct{}
	closed  sync.Once
	now     func() time.Time
}

// NewMemoryStore creates an in-memory store with a background sweeper that
// evicts expired records every sweepInterval.
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]time.Time),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go s.sweep(sweepInterval)
	return s
}

// CheckAndRegister implements Store. The mutex makes check-and-insert atomic:
// two concurrent requests bearing the same nonce cannot both win.
func (s *MemoryStore) CheckAndRegister(ctx context.Context, sourceID, nonce string, retention time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	key := sourceID + "\x00" + nonce
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if expiry, ok := s.entries[key]; ok && expiry.After(now) {
		return false, nil
	}
	s.entries[key] = now.Add(retention)
	return true, nil
}

func (s *MemoryStore) Close() error {
	s.closed.Do(func() { close(s.done) })
	return nil
}

// Len reports the number of live records (expired entries not yet swept count
// until eviction).
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			now := s.now()
			s.mu.Lock()
			for key, expiry := range s.entries {
				if !expiry.After(now) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
