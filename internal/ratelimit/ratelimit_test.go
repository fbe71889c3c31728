package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoOpLimiter(t *testing.T) {
	limiter := &NoOpLimiter{}
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		dec, err := limiter.Allow(ctx, "any-key")
		require.NoError(t, err)
		assert.True(t, dec.Allowed)
	}
	assert.NoError(t, limiter.Close())
}

func TestMemoryLimiter_UnderCeiling(t *testing.T) {
	limiter := NewMemoryLimiter(5, time.Minute)
	defer limiter.Close()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		dec, err := limiter.Allow(ctx, "10.0.0.5")
		require.NoError(t, err)
		assert.True(t, dec.Allowed, "request %d should be allowed", i)
		assert.Equal(t, i, dec.CurrentCount)
	}
}

func TestMemoryLimiter_AtCeiling(t *testing.T) {
	limiter := NewMemoryLimiter(5, time.Minute)
	defer limiter.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		dec, err := limiter.Allow(ctx, "10.0.0.5")
		require.NoError(t, err)
		require.True(t, dec.Allowed)
	}

	dec, err := limiter.Allow(ctx, "10.0.0.5")
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, 5, dec.CurrentCount)
	assert.Greater(t, dec.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, dec.RetryAfter, time.Minute)
}

func TestMemoryLimiter_PerSourceIsolation(t *testing.T) {
	limiter := NewMemoryLimiter(1, time.Minute)
	defer limiter.Close()
	ctx := context.Background()

	dec, err := limiter.Allow(ctx, "10.0.0.5")
	require.NoError(t, err)
	require.True(t, dec.Allowed)

	dec, err = limiter.Allow(ctx, "10.0.0.5")
	require.NoError(t, err)
	require.False(t, dec.Allowed)

	dec, err = limiter.Allow(ctx, "10.0.0.6")
	require.NoError(t, err)
	assert.True(t, dec.Allowed, "a saturated source must not affect others")
}

func TestMemoryLimiter_WindowSlides(t *testing.T) {
	limiter := NewMemoryLimiter(2, time.Minute)
	defer limiter.Close()
	ctx := context.Background()

	current := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return current }

	for i := 0; i < 2; i++ {
		dec, err := limiter.Allow(ctx, "src")
		require.NoError(t, err)
		require.True(t, dec.Allowed)
	}

	dec, err := limiter.Allow(ctx, "src")
	require.NoError(t, err)
	require.False(t, dec.Allowed)

	// Advance past the first stamp; one slot frees up.
	current = current.Add(61 * time.Second)
	dec, err = limiter.Allow(ctx, "src")
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
}

// RetryAfter must track the oldest in-window stamp, so repeated rejected
// polls see a non-increasing wait.
func TestMemoryLimiter_RetryAfterShrinks(t *testing.T) {
	limiter := NewMemoryLimiter(1, time.Minute)
	defer limiter.Close()
	ctx := context.Background()

	current := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return current }

	dec, err := limiter.Allow(ctx, "src")
	require.NoError(t, err)
	require.True(t, dec.Allowed)

	dec, err = limiter.Allow(ctx, "src")
	require.NoError(t, err)
	require.False(t, dec.Allowed)
	first := dec.RetryAfter

	current = current.Add(20 * time.Second)
	dec, err = limiter.Allow(ctx, "src")
	require.NoError(t, err)
	require.False(t, dec.Allowed)
	assert.Less(t, dec.RetryAfter, first)
}

// A sender cycling spoofed source identities must not grow the map forever:
// once every stamp for a source has left the window, the sweep drops the key.
func TestMemoryLimiter_PurgeEvictsIdleSources(t *testing.T) {
	limiter := NewMemoryLimiter(100, time.Minute)
	defer limiter.Close()
	ctx := context.Background()

	current := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return current }

	for i := 0; i < 1000; i++ {
		_, err := limiter.Allow(ctx, fmt.Sprintf("10.0.%d.%d", i/256, i%256))
		require.NoError(t, err)
	}

	current = current.Add(time.Hour)

	dec, err := limiter.Allow(ctx, "10.9.9.9")
	require.NoError(t, err)
	require.True(t, dec.Allowed)

	limiter.purge()

	limiter.mu.Lock()
	size := len(limiter.windows)
	limiter.mu.Unlock()
	assert.Equal(t, 1, size, "only the active source should survive the sweep")

	_, ok := limiter.windows["10.9.9.9"]
	assert.True(t, ok)
}

func TestMemoryLimiter_CloseIdempotent(t *testing.T) {
	limiter := NewMemoryLimiter(1, time.Minute)
	assert.NoError(t, limiter.Close())
	assert.NoError(t, limiter.Close())
}

func TestMemoryLimiter_CancelledContext(t *testing.T) {
	limiter := NewMemoryLimiter(1, time.Minute)
	defer limiter.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := limiter.Allow(ctx, "src")
	assert.Error(t, err)
}
