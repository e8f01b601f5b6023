// Package resilience provides circuit breaker and provider failover primitives.
//
// The central types are [CircuitBreaker], a classic three-state breaker
// (closed → open → half-open) that protects callers from hammering an
// unhealthy remote dependency, and [Manager], a priority-ordered pool of
// provider adapters with per-provider breakers and automatic fallback.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is reported when a call is rejected because the guarding
// breaker is in the open state and the recovery timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed is the normal operating state — all calls are forwarded.
	StateClosed State = iota

	// StateOpen indicates the breaker has tripped due to consecutive failures.
	// Calls are rejected until the recovery timeout elapses.
	StateOpen

	// StateHalfOpen is the probe state entered after the recovery timeout.
	// Probe calls are allowed through; a success closes the breaker, any
	// failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name is a human-readable label used in log messages and snapshots.
	Name string

	// FailureThreshold is the number of consecutive failures in the closed
	// state before the breaker opens. Default: 3.
	FailureThreshold int

	// RecoveryTimeout is how long the breaker stays open before an Allow call
	// transitions it to half-open. Default: 30s.
	RecoveryTimeout time.Duration

	// SuccessThreshold is the number of half-open successes required to close
	// the breaker again. Default: 1.
	SuccessThreshold int
}

// CircuitSnapshot is an observable copy of a breaker's state and counters.
type CircuitSnapshot struct {
	Name                string    `json:"name"`
	State               string    `json:"state"`
	TotalCalls          int       `json:"total_calls"`
	Successes           int       `json:"successes"`
	Failures            int       `json:"failures"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	FailureRate         float64   `json:"failure_rate"`
	StateChangedAt      time.Time `json:"state_changed_at"`
	LastFailure         string    `json:"last_failure,omitempty"`
}

// CircuitBreaker implements the three-state circuit breaker pattern. Unlike a
// wrapping breaker it does not run the guarded call itself: callers ask
// [CircuitBreaker.Allow] before the call and report the outcome with
// [CircuitBreaker.RecordSuccess] or [CircuitBreaker.RecordFailure]. This keeps
// the critical section free of network I/O.
//
// CircuitBreaker is safe for concurrent use from multiple goroutines.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration
	successThreshold int

	mu              sync.Mutex
	state           State
	stateChangedAt  time.Time
	totalCalls      int
	successes       int
	failures        int
	consecutiveFail int
	halfOpenSuccess int
	lastFailure     string
}

// NewCircuitBreaker creates a [CircuitBreaker] with the supplied configuration.
// Zero-value config fields are replaced with sensible defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	return &CircuitBreaker{
		name:             cfg.Name,
		failureThreshold: cfg.FailureThreshold,
		recoveryTimeout:  cfg.RecoveryTimeout,
		successThreshold: cfg.SuccessThreshold,
		state:            StateClosed,
		stateChangedAt:   time.Now(),
	}
}

// Allow reports whether a call may proceed. In the open state it returns false
// until the recovery timeout has elapsed, at which point the breaker
// transitions to half-open and the call is admitted as a probe.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.stateChangedAt) < cb.recoveryTimeout {
			return false
		}
		cb.setState(StateHalfOpen)
		cb.halfOpenSuccess = 0
		return true
	default:
		return true
	}
}

// RecordSuccess reports a successful call. In the half-open state enough
// successes (SuccessThreshold) close the breaker; in the closed state the
// consecutive failure counter is reset.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalCalls++
	cb.successes++
	cb.consecutiveFail = 0

	if cb.state == StateHalfOpen {
		cb.halfOpenSuccess++
		if cb.halfOpenSuccess >= cb.successThreshold {
			cb.setState(StateClosed)
			cb.halfOpenSuccess = 0
		}
	}
}

// RecordFailure reports a failed call. Any failure in the half-open state
// re-opens the breaker immediately; in the closed state the breaker opens once
// FailureThreshold consecutive failures accumulate.
func (cb *CircuitBreaker) RecordFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalCalls++
	cb.failures++
	cb.consecutiveFail++
	if err != nil {
		cb.lastFailure = err.Error()
	}

	switch cb.state {
	case StateHalfOpen:
		cb.setState(StateOpen)
	case StateClosed:
		if cb.consecutiveFail >= cb.failureThreshold {
			cb.setState(StateOpen)
		}
	}
}

// Snapshot returns an observable copy of the breaker's state and counters.
func (cb *CircuitBreaker) Snapshot() CircuitSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	rate := 0.0
	if cb.totalCalls > 0 {
		rate = float64(cb.failures) / float64(cb.totalCalls)
	}
	return CircuitSnapshot{
		Name:                cb.name,
		State:               cb.state.String(),
		TotalCalls:          cb.totalCalls,
		Successes:           cb.successes,
		Failures:            cb.failures,
		ConsecutiveFailures: cb.consecutiveFail,
		FailureRate:         rate,
		StateChangedAt:      cb.stateChangedAt,
		LastFailure:         cb.lastFailure,
	}
}

// State returns the current [State] of the breaker. An open breaker whose
// recovery timeout has elapsed still reports [StateOpen] here; the actual
// transition to half-open happens on the next [CircuitBreaker.Allow] call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker back to [StateClosed], clearing all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.setState(StateClosed)
	cb.totalCalls = 0
	cb.successes = 0
	cb.failures = 0
	cb.consecutiveFail = 0
	cb.halfOpenSuccess = 0
	cb.lastFailure = ""
}

// setState transitions the breaker and logs the change. Must be called with
// cb.mu held.
func (cb *CircuitBreaker) setState(next State) {
	if cb.state == next {
		cb.stateChangedAt = time.Now()
		return
	}
	prev := cb.state
	cb.state = next
	cb.stateChangedAt = time.Now()

	switch next {
	case StateOpen:
		slog.Warn("circuit breaker opened",
			"name", cb.name,
			"from", prev.String(),
			"consecutive_failures", cb.consecutiveFail)
	case StateHalfOpen:
		slog.Info("circuit breaker transitioning to half-open", "name", cb.name)
	case StateClosed:
		slog.Info("circuit breaker closed", "name", cb.name, "from", prev.String())
	}
}
