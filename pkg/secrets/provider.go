// Package secrets resolves service credentials from a secret store.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// ErrNotFound is returned when a provider has no value for a key
var ErrNotFound = errors.New("secret not found")

// Provider reads secrets by key
type Provider interface {
	GetSecret(ctx context.Context, key string) (string, error)
}

// EnvProvider reads secrets from the process environment
type EnvProvider struct{}

func NewEnvProvider() *EnvProvider {
	return &EnvProvider{}
}

func (p *EnvProvider) GetSecret(ctx context.Context, key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return value, nil
}

// CachedProvider memoizes another provider for ttl
type CachedProvider struct {
	provider Provider
	mu       sync.RWMutex
	cache    map[string]cachedSecret
	ttl      time.Duration
	now      func() time.Time
}

type cachedSecret struct {
	value     string
	expiresAt time.Time
}

func NewCachedProvider(provider Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		provider: provider,
		cache:    make(map[string]cachedSecret),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (p *CachedProvider) GetSecret(ctx context.Context, key string) (string, error) {
	p.mu.RLock()
	cached, ok := p.cache[key]
	p.mu.RUnlock()
	if ok && p.now().Before(cached.expiresAt) {
		return cached.value, nil
	}

	value, err := p.provider.GetSecret(ctx, key)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	p.cache[key] = cachedSecret{value: value, expiresAt: p.now().Add(p.ttl)}
	p.mu.Unlock()

	return value, nil
}

// Resolve fills every empty target from the provider. Keys the provider does
// not hold are left empty; any other failure aborts.
func Resolve(ctx context.Context, provider Provider, targets map[string]*string) error {
	for key, dst := range targets {
		if dst == nil || *dst != "" {
			continue
		}
		value, err := provider.GetSecret(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", key, err)
		}
		*dst = value
	}
	return nil
}
