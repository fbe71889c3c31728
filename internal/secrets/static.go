package secrets

import (
	"context"
	"sync"
)

// StaticProvider serves secrets from a fixed in-memory map. Used for local
// development and tests; values come straight from configuration.
type StaticProvider struct {
	mu      sync.RWMutex
	secrets map[string]map[string]string
}

// NewStaticProvider creates a provider over the given path -> values map.
func NewStaticProvider(secrets map[string]map[string]string) *StaticProvider {
	copied := make(map[string]map[string]string, len(secrets))
	for path, values := range secrets {
		inner := make(map[string]string, len(values))
		for k, v := range values {
			inner[k] = v
		}
		copied[path] = inner
	}
	return &StaticProvider{secrets: copied}
}

// Name implements Provider.
func (p *StaticProvider) Name() string {
	return "static"
}

// Fetch implements Provider.
func (p *StaticProvider) Fetch(ctx context.Context, path string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	values, ok := p.secrets[path]
	if !ok {
		return nil, &NotFoundError{Path: path}
	}

	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out, nil
}

// Set replaces the values at path. Tests use this to simulate rotation.
func (p *StaticProvider) Set(path string, values map[string]string) {
	inner := make(map[string]string, len(values))
	for k, v := range values {
		inner[k] = v
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.secrets[path] = inner
}
