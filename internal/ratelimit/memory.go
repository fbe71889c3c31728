package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter keeps per-source request timestamps in process memory.
// Entries older than the window are purged lazily on each check, and a
// background sweeper drops sources that have gone idle for a full window, so
// memory stays bounded even when callers cycle through source identities.
// State resets on restart.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	limit   int
	window  time.Duration
	done    chan struct{}
	closed  sync.Once
	now     func() time.Time
}

// NewMemoryLimiter creates an in-memory sliding-window limiter.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	m := &MemoryLimiter{
		windows: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go m.sweep(window)
	return m
}

// Allow implements Limiter.
func (m *MemoryLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	now := m.now()
	windowStart := now.Add(-m.window)

	m.mu.Lock()
	defer m.mu.Unlock()

	stamps := m.windows[key]

	// Drop entries that have left the window. Stamps are appended in order,
	// so the first in-window index splits kept from purged.
	keep := 0
	for keep < len(stamps) && !stamps[keep].After(windowStart) {
		keep++
	}
	stamps = stamps[keep:]

	if len(stamps) >= m.limit {
		m.windows[key] = stamps
		return Decision{
			Allowed:      false,
			CurrentCount: len(stamps),
			WindowStart:  windowStart,
			RetryAfter:   stamps[0].Add(m.window).Sub(now),
		}, nil
	}

	stamps = append(stamps, now)
	m.windows[key] = stamps

	return Decision{
		Allowed:      true,
		CurrentCount: len(stamps),
		WindowStart:  windowStart,
	}, nil
}

func (m *MemoryLimiter) Close() error {
	m.closed.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryLimiter) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.purge()
		}
	}
}

// purge removes sources whose newest timestamp has left the window. Lazy
// trimming in Allow only runs for sources that come back, so idle keys are
// evicted here.
func (m *MemoryLimiter) purge() {
	windowStart := m.now().Add(-m.window)

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, stamps := range m.windows {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(windowStart) {
			delete(m.windows, key)
		}
	}
}
