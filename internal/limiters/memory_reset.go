package limiters

import (
	"context"
	"sync"
	"time"
)

// MemoryResetLimiter is the rolling window used when no Redis is configured.
// It counts per fingerprint, like PasswordResetLimiter, so the decision never
// depends on whether an account exists. Counts are local to the process.
type MemoryResetLimiter struct {
	config PasswordResetConfig

	mu        sync.Mutex
	hits      map[string][]time.Time
	lastSweep time.Time
}

func NewMemoryResetLimiter(cfg PasswordResetConfig) *MemoryResetLimiter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &MemoryResetLimiter{
		config: cfg,
		hits:   map[string][]time.Time{},
	}
}

// Allow records a request for fingerprint if the window has room. A denied
// request is not recorded, and RetryAfter is the time until the oldest
// counted request leaves the window.
func (l *MemoryResetLimiter) Allow(_ context.Context, fingerprint string) (ResetDecision, error) {
	now := l.config.Now()
	cutoff := now.Add(-l.config.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now, cutoff)

	hits := inWindow(l.hits[fingerprint], cutoff)
	if len(hits) >= l.config.MaxRequests {
		l.hits[fingerprint] = hits
		retry := hits[0].Add(l.config.Window).Sub(now)
		if retry <= 0 {
			retry = time.Second
		}
		return ResetDecision{RetryAfter: retry}, nil
	}

	l.hits[fingerprint] = append(hits, now)
	return ResetDecision{Allowed: true}, nil
}

// sweep drops idle fingerprints at most once per window.
func (l *MemoryResetLimiter) sweep(now, cutoff time.Time) {
	if now.Sub(l.lastSweep) < l.config.Window {
		return
	}
	l.lastSweep = now
	for fp, hits := range l.hits {
		if len(inWindow(hits, cutoff)) == 0 {
			delete(l.hits, fp)
		}
	}
}

func (l *MemoryResetLimiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}

// inWindow drops hits at or before cutoff. hits is in insertion order.
func inWindow(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}
