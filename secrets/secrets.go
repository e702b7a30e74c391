package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrSecretUnavailable is returned when a provider has no usable secret.
var ErrSecretUnavailable = errors.New("signing secret unavailable")

// Provider returns the current signing secret.
type Provider interface {
	SigningSecret(ctx context.Context) (string, error)
}

// Static always returns the same secret. Useful in tests and for secrets
// injected at build time.
type Static string

func (s Static) SigningSecret(context.Context) (string, error) {
	if s == "" {
		return "", ErrSecretUnavailable
	}
	return string(s), nil
}

// Env reads the secret from an environment variable on every call.
type Env struct {
	Name string
}

func (e Env) SigningSecret(context.Context) (string, error) {
	v := strings.TrimSpace(os.Getenv(e.Name))
	if v == "" {
		return "", fmt.Errorf("%w: %s is not set", ErrSecretUnavailable, e.Name)
	}
	return v, nil
}

// File reads the secret from a file, as mounted by Kubernetes or Docker
// secrets. Trailing whitespace is trimmed.
type File struct {
	Path string
}

func (f File) SigningSecret(context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSecretUnavailable, err)
	}
	v := strings.TrimSpace(string(data))
	if v == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrSecretUnavailable, f.Path)
	}
	return v, nil
}

// Cached memoizes another provider for TTL. Failed fetches are not cached.
type Cached struct {
	source Provider
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	value     string
	fetchedAt time.Time
	valid     bool
}

// NewCached wraps source. A nil now uses time.Now.
func NewCached(source Provider, ttl time.Duration, now func() time.Time) (*Cached, error) {
	if source == nil {
		return nil, errors.New("secret source required")
	}
	if ttl <= 0 {
		return nil, errors.New("secret cache ttl must be > 0")
	}
	if now == nil {
		now = time.Now
	}
	return &Cached{source: source, ttl: ttl, now: now}, nil
}

func (c *Cached) SigningSecret(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.value, nil
	}

	v, err := c.source.SigningSecret(ctx)
	if err != nil {
		return "", err
	}
	c.value = v
	c.fetchedAt = c.now()
	c.valid = true
	return v, nil
}

// Invalidate drops the cached value so the next call refetches.
func (c *Cached) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.value = ""
	c.mu.Unlock()
}
