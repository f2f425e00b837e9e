package engine

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type breakerState struct {
	failures  int
	openUntil time.Time
	probing   bool
}

// BreakerInfo is a read-only view of one account's breaker.
type BreakerInfo struct {
	Failures  int
	OpenUntil time.Time
	Open      bool
}

// CircuitBreaker opens an account after a run of consecutive failures and
// lets a single probe through once the cooldown has elapsed. A failed probe
// re-opens for a full cooldown; a successful one closes the breaker.
type CircuitBreaker struct {
	clock     clockwork.Clock
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	accounts map[int64]*breakerState
}

func NewCircuitBreaker(clock clockwork.Clock, threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		clock:     clock,
		threshold: threshold,
		cooldown:  cooldown,
		accounts:  map[int64]*breakerState{},
	}
}

func (b *CircuitBreaker) state(accountID int64) *breakerState {
	s, ok := b.accounts[accountID]
	if !ok {
		s = &breakerState{}
		b.accounts[accountID] = s
	}
	return s
}

// Allow reports whether a call for the account may proceed now.
func (b *CircuitBreaker) Allow(accountID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.state(accountID)
	if s.openUntil.IsZero() {
		return true
	}
	if b.clock.Now().Before(s.openUntil) {
		return false
	}
	// cooldown elapsed: exactly one probe goes through
	if s.probing {
		return false
	}
	s.probing = true
	return true
}

// Release frees the probe slot when its holder ends without a submission
// verdict, letting the next job probe instead of waiting on a slot nobody
// will return.
func (b *CircuitBreaker) Release(accountID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state(accountID).probing = false
}

func (b *CircuitBreaker) Success(accountID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.state(accountID)
	s.failures = 0
	s.openUntil = time.Time{}
	s.probing = false
}

// Failure records one failed call and returns the time the circuit stays
// open until, or the zero time while it remains closed.
func (b *CircuitBreaker) Failure(accountID int64) time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.state(accountID)
	s.failures++
	if s.probing || s.failures >= b.threshold {
		s.openUntil = b.clock.Now().Add(b.cooldown)
		s.probing = false
	}
	return s.openUntil
}

func (b *CircuitBreaker) Info(accountID int64) BreakerInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.state(accountID)
	return BreakerInfo{
		Failures:  s.failures,
		OpenUntil: s.openUntil,
		Open:      !s.openUntil.IsZero() && b.clock.Now().Before(s.openUntil),
	}
}
