package authflow

import (
	"sync"
	"time"
)

// lockoutState tracks consecutive failures for one account key.
type lockoutState struct {
	failures    int
	lockedUntil time.Time
	lastLockout time.Duration
	lastFailure time.Time
}

// lockoutTable is the in-memory lockout ledger, keyed by normalized
// username. Idle entries are evicted by the periodic sweep, so the table
// never grows without bound.
type lockoutTable struct {
	cfg LockoutConfig
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*lockoutState
}

func newLockoutTable(cfg LockoutConfig) *lockoutTable {
	return &lockoutTable{
		cfg:     cfg,
		now:     time.Now,
		entries: make(map[string]*lockoutState),
	}
}

// remaining returns how long the key stays locked; zero means not locked.
func (t *lockoutTable) remaining(key string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		return 0
	}
	if rem := e.lockedUntil.Sub(t.now()); rem > 0 {
		return rem
	}
	return 0
}

// fail records one failed attempt. The attempt that reaches the configured
// maximum locks the account and returns the lockout remainder; under
// progressive lockout each new lockout doubles the previous one.
func (t *lockoutTable) fail(key string) (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key]
	if !ok {
		e = &lockoutState{}
		t.entries[key] = e
	}
	e.failures++
	e.lastFailure = t.now()
	if e.failures < t.cfg.MaxAttempts {
		return false, 0
	}

	duration := t.cfg.Duration()
	if t.cfg.ProgressiveLockout && e.lastLockout > 0 {
		duration = e.lastLockout * 2
	}
	e.lastLockout = duration
	e.lockedUntil = t.now().Add(duration)
	e.failures = 0
	return true, duration
}

// attemptsLeft returns how many more failures the key can absorb before
// locking.
func (t *lockoutTable) attemptsLeft(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		return t.cfg.MaxAttempts
	}
	return t.cfg.MaxAttempts - e.failures
}

// reset clears failure state after a successful authentication. The
// progressive lockout history is cleared with it.
func (t *lockoutTable) reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

// sweep evicts entries that are not locked and have been idle past the
// configured TTL as of now, returning how many were removed. Locked entries
// survive until their lockout lapses.
func (t *lockoutTable) sweep(now time.Time) int {
	ttl := t.cfg.StateTTL()
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, e := range t.entries {
		if now.Before(e.lockedUntil) {
			continue
		}
		if now.Sub(e.lastFailure) > ttl {
			delete(t.entries, key)
			removed++
		}
	}
	return removed
}
