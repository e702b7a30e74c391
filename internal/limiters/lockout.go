package limiters

import "time"

// LockoutPolicy locks an account for Duration once MaxAttempts consecutive
// failures accumulate.
type LockoutPolicy struct {
	MaxAttempts int
	Duration    time.Duration
}

// LockoutDecision is the state to persist after a failed login.
type LockoutDecision struct {
	Attempts    int
	Locked      bool
	LockedUntil *time.Time
	Remaining   int
}

// Locked reports whether lockedUntil is still in the future. A past lock is
// treated as no lock at all.
func Locked(lockedUntil *time.Time, now time.Time) bool {
	return lockedUntil != nil && lockedUntil.After(now)
}

// RecordFailure computes the next state from the stored attempts and lock.
// A lock that has already expired resets the count before this failure is
// added, so a user coming back after lockout gets a full budget again.
func (p LockoutPolicy) RecordFailure(attempts int, lockedUntil *time.Time, now time.Time) LockoutDecision {
	if attempts < 0 || (lockedUntil != nil && !lockedUntil.After(now)) {
		attempts = 0
	}

	next := attempts + 1
	if next >= p.MaxAttempts {
		until := now.Add(p.Duration)
		return LockoutDecision{Attempts: next, Locked: true, LockedUntil: &until}
	}
	return LockoutDecision{Attempts: next, Remaining: p.MaxAttempts - next}
}

// NeedsReset reports whether a successful login has counters to clear.
func NeedsReset(attempts int, lockedUntil *time.Time) bool {
	return attempts > 0 || lockedUntil != nil
}
