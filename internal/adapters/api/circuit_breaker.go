package api

import (
	"sync"
	"time"

	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// CircuitClosed allows all requests
	CircuitClosed CircuitState = iota
	// CircuitOpen blocks all requests
	CircuitOpen
	// CircuitHalfOpen allows a single probe to test recovery
	CircuitHalfOpen
)

// CircuitBreaker fails calls fast once the remote looks down. Only
// failures matching the trips predicate advance the counter; success
// resets it. While open, calls return shared.ErrCircuitOpen without a
// network attempt. After the cooldown one probe is let through: if it
// succeeds the circuit closes, if it fails the open timer re-arms.
type CircuitBreaker struct {
	maxFailures     int
	cooldown        time.Duration
	trips           func(error) bool
	state           CircuitState
	failureCount    int
	lastFailureTime time.Time
	mu              sync.Mutex
	clock           shared.Clock
}

// NewCircuitBreaker creates a breaker with optional clock injection.
// If clock is nil, uses RealClock. A nil trips predicate counts every
// failure.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration, clock shared.Clock, trips func(error) bool) *CircuitBreaker {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	if trips == nil {
		trips = func(err error) bool { return err != nil }
	}
	return &CircuitBreaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		trips:       trips,
		state:       CircuitClosed,
		clock:       clock,
	}
}

// Call executes fn with circuit breaker protection.
func (cb *CircuitBreaker) Call(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}

	// Execute without holding the lock so slow calls (retries,
	// backoff sleeps) do not serialize unrelated requests.
	callErr := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if probe {
		cb.settleProbe(callErr)
		return callErr
	}
	if callErr == nil {
		cb.onSuccess()
		return nil
	}
	if cb.trips(callErr) {
		cb.onFailure()
	}
	return callErr
}

// admit decides whether a call may proceed and whether it is the
// half-open probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if cb.clock.Now().Sub(cb.lastFailureTime) < cb.cooldown {
			return false, shared.ErrCircuitOpen
		}
		cb.state = CircuitHalfOpen
		return true, nil
	case CircuitHalfOpen:
		// A probe is already in flight.
		return false, shared.ErrCircuitOpen
	default:
		return false, nil
	}
}

// settleProbe closes the circuit on a successful probe and re-arms the
// open timer on any failed one.
func (cb *CircuitBreaker) settleProbe(callErr error) {
	if callErr == nil {
		cb.state = CircuitClosed
		cb.failureCount = 0
		return
	}
	cb.state = CircuitOpen
	cb.lastFailureTime = cb.clock.Now()
}

func (cb *CircuitBreaker) onFailure() {
	cb.failureCount++
	cb.lastFailureTime = cb.clock.Now()
	if cb.failureCount >= cb.maxFailures {
		cb.state = CircuitOpen
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.failureCount = 0
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// FailureCount returns the current consecutive tripping-failure count.
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount
}
