// Package oauthstate holds short-lived OAuth state/nonce pairs in process
// memory. Each state can be consumed once, inside its validity window.
package oauthstate

import (
	"errors"
	"sync"
	"time"
)

const (
	DefaultTTL           = 10 * time.Minute
	DefaultSweepInterval = time.Minute
	DefaultMaxEntries    = 100_000
)

var (
	ErrDuplicateState = errors.New("oauth state already issued")
	ErrStoreFull      = errors.New("oauth state store full")
	ErrStoreClosed    = errors.New("oauth state store closed")
)

// Config controls expiry and sweeping. Zero values take defaults; a
// negative SweepInterval disables the background sweeper.
type Config struct {
	TTL           time.Duration
	SweepInterval time.Duration
	MaxEntries    int
	Now           func() time.Time
}

type entry struct {
	nonce    string
	issuedAt time.Time
}

// Store is a mutex-guarded map with a ticker-driven sweeper.
type Store struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]entry
	closed  bool

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a store and starts its sweeper.
func New(cfg Config) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Store{
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
		now:        cfg.Now,
		entries:    make(map[string]entry),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	if cfg.SweepInterval > 0 {
		go s.sweepLoop(cfg.SweepInterval)
	} else {
		close(s.done)
	}
	return s
}

// Put records state with its nonce.
func (s *Store) Put(state, nonce string) error {
	if state == "" {
		return errors.New("oauth state required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.entries[state]; ok {
		return ErrDuplicateState
	}
	if len(s.entries) >= s.maxEntries {
		s.sweepLocked()
		if len(s.entries) >= s.maxEntries {
			return ErrStoreFull
		}
	}

	s.entries[state] = entry{nonce: nonce, issuedAt: s.now()}
	return nil
}

// Consume removes state and returns its nonce. ok is false when the state
// was never issued, was already consumed, or has outlived the TTL.
func (s *Store) Consume(state string) (nonce string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, found := s.entries[state]
	if !found {
		return "", false
	}
	delete(s.entries, state)

	if s.expired(e) {
		return "", false
	}
	return e.nonce, true
}

// Sweep deletes expired entries and reports how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked()
}

// Len reports the number of live and not yet swept entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops the sweeper and rejects further Puts. Safe to call twice.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.stop)
		<-s.done
	})
}

func (s *Store) sweepLoop(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *Store) sweepLocked() int {
	removed := 0
	for k, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

func (s *Store) expired(e entry) bool {
	return s.now().Sub(e.issuedAt) >= s.ttl
}
