// Package lockout tracks failed login attempts per account and locks the
// account once a threshold is crossed inside a sliding window.
package lockout

import (
	"sync"
	"time"
)

// Config bounds the failure counting.
type Config struct {
	// MaxAttempts is the number of failures inside Window that triggers a
	// lock.
	MaxAttempts int
	// Window is how far back failures still count.
	Window time.Duration
	// Duration is how long an account stays locked.
	Duration time.Duration
}

type state struct {
	failures    []time.Time
	lockedUntil time.Time
}

// Tracker records failures and answers lock queries. Expired locks and stale
// failures are pruned at read time; nothing runs in the background.
type Tracker struct {
	mu       sync.Mutex
	cfg      Config
	accounts map[string]*state
	clock    func() time.Time
}

// New creates a tracker with the given limits.
func New(cfg Config) *Tracker {
	return &Tracker{
		cfg:      cfg,
		accounts: make(map[string]*state),
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Tests use this to step through
// windows without sleeping.
func (t *Tracker) WithClock(clock func() time.Time) *Tracker {
	t.clock = clock
	return t
}

// RecordFailure notes a failed attempt and returns true if the account is
// now locked.
func (t *Tracker) RecordFailure(account string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	st, ok := t.accounts[account]
	if !ok {
		st = &state{}
		t.accounts[account] = st
	}

	st.failures = append(t.prune(st.failures, now), now)
	if len(st.failures) >= t.cfg.MaxAttempts {
		st.lockedUntil = now.Add(t.cfg.Duration)
		st.failures = nil
		return true
	}
	return false
}

// IsLocked reports whether the account is currently locked. An expired lock
// clears itself on the way out.
func (t *Tracker) IsLocked(account string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.accounts[account]
	if !ok {
		return false
	}
	now := t.clock()
	if st.lockedUntil.IsZero() {
		return false
	}
	if !now.Before(st.lockedUntil) {
		st.lockedUntil = time.Time{}
		st.failures = nil
		return false
	}
	return true
}

// LockedUntil returns the lock deadline for a locked account.
func (t *Tracker) LockedUntil(account string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.accounts[account]
	if !ok || st.lockedUntil.IsZero() || !t.clock().Before(st.lockedUntil) {
		return time.Time{}, false
	}
	return st.lockedUntil, true
}

// Reset clears failures and any lock for the account. Called after a
// successful login.
func (t *Tracker) Reset(account string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.accounts, account)
}

func (t *Tracker) prune(failures []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-t.cfg.Window)
	kept := failures[:0]
	for _, at := range failures {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	return kept
}
