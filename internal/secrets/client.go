package secrets

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/radlink-systems/pacsgate/internal/logging"
	"github.com/radlink-systems/pacsgate/internal/metrics"
)

// Bundle is a named group of related credentials with its fetch metadata.
// Once returned it is immutable; callers must not modify Values. Rotation
// or TTL expiry replaces the whole bundle, never individual entries.
type Bundle struct {
	Name      string
	Provider  string
	Values    map[string]string
	FetchedAt time.Time
}

// Value returns a single credential from the bundle.
func (b *Bundle) Value(key string) (string, bool) {
	v, ok := b.Values[key]
	return v, ok
}

// CacheStats describes cache state without exposing any secret values.
type CacheStats struct {
	Provider      string `json:"provider"`
	CachedBundles int    `json:"cachedBundles"`
	TTL           string `json:"ttl"`
}

// Client is the cache-aside front for one secret provider. Reads are served
// from an immutable snapshot per bundle; refreshes swap the snapshot pointer
// under the write lock so no reader ever observes a half-updated bundle.
type Client struct {
	provider     Provider
	paths        map[string]string // bundle name -> provider path
	ttl          time.Duration
	fetchTimeout time.Duration
	logger       *logging.Logger

	mu       sync.RWMutex
	cache    map[string]*Bundle
	lastGood map[string]*Bundle

	now func() time.Time
}

// NewClient creates a secret store client. paths maps bundle names to
// provider paths; ttl bounds how long a fetched bundle is served from cache.
func NewClient(provider Provider, paths map[string]string, ttl, fetchTimeout time.Duration, logger *logging.Logger) *Client {
	copied := make(map[string]string, len(paths))
	for name, path := range paths {
		copied[name] = path
	}
	return &Client{
		provider:     provider,
		paths:        copied,
		ttl:          ttl,
		fetchTimeout: fetchTimeout,
		logger:       logger,
		cache:        make(map[string]*Bundle),
		lastGood:     make(map[string]*Bundle),
		now:          time.Now,
	}
}

// GetSecrets returns the bundle with the given name, fetching from the
// provider on first use or after TTL expiry. On provider failure the
// last-known-good bundle is returned if one exists; otherwise the call fails
// with ErrSecretUnavailable.
func (c *Client) GetSecrets(ctx context.Context, name string) (*Bundle, error) {
	path, ok := c.paths[name]
	if !ok {
		return nil, fmt.Errorf("unknown secret bundle: %s", name)
	}

	c.mu.RLock()
	cached := c.cache[name]
	c.mu.RUnlock()

	if cached != nil && c.now().Sub(cached.FetchedAt) < c.ttl {
		metrics.SecretCacheHits.Inc()
		return cached, nil
	}

	metrics.SecretCacheMisses.Inc()

	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	values, err := c.provider.Fetch(fetchCtx, path)
	if err != nil {
		metrics.SecretFetchErrors.Inc()

		c.mu.RLock()
		fallback := c.lastGood[name]
		c.mu.RUnlock()

		if fallback != nil {
			c.logger.Warn("secret fetch failed, serving last-known-good bundle",
				logging.Bundle(name), logging.Error(err))
			return fallback, nil
		}
		return nil, fmt.Errorf("%w: bundle %s: %v", ErrSecretUnavailable, name, err)
	}

	bundle := &Bundle{
		Name:      name,
		Provider:  c.provider.Name(),
		Values:    values,
		FetchedAt: c.now(),
	}

	c.mu.Lock()
	c.cache[name] = bundle
	c.lastGood[name] = bundle
	c.mu.Unlock()

	return bundle, nil
}

// Key returns one credential from a bundle as bytes, for callers that need a
// signing or verification key.
func (c *Client) Key(ctx context.Context, bundle, key string) ([]byte, error) {
	b, err := c.GetSecrets(ctx, bundle)
	if err != nil {
		return nil, err
	}
	v, ok := b.Value(key)
	if !ok || v == "" {
		return nil, fmt.Errorf("bundle %s has no value for %s", bundle, key)
	}
	return []byte(v), nil
}

// ClearCache drops all cached bundles so the next request for each re-fetches
// from the provider. Last-known-good copies are kept for failure fallback.
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[string]*Bundle)
	c.mu.Unlock()
}

// CacheStats implements the status endpoint contract: provider name, cache
// size, and TTL only. Secret values are never exposed here.
func (c *Client) CacheStats() CacheStats {
	c.mu.RLock()
	size := len(c.cache)
	c.mu.RUnlock()

	return CacheStats{
		Provider:      c.provider.Name(),
		CachedBundles: size,
		TTL:           c.ttl.String(),
	}
}

// BundleNames lists the configured bundle names.
func (c *Client) BundleNames() []string {
	names := make([]string, 0, len(c.paths))
	for name := range c.paths {
		names = append(names, name)
	}
	return names
}

// BundleForPath maps a provider secret path back to its bundle name. Rotation
// notifications identify secrets by path, not bundle.
func (c *Client) BundleForPath(path string) (string, bool) {
	for name, p := range c.paths {
		if p == path {
			return name, true
		}
	}
	return "", false
}
