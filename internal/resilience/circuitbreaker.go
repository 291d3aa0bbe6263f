// Package resilience provides circuit breaker and provider failover
// primitives.
//
// The central type is [CircuitBreaker], a classic three-state breaker
// (closed → open → half-open) that protects callers from hammering a failing
// backend. [FallbackGroup] composes multiple instances of any provider type
// with per-entry circuit breakers so that a failing primary is automatically
// bypassed in favour of healthy fallbacks.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Do] when the breaker is in
// the open state and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed is the normal operating state; all calls are forwarded.
	StateClosed State = iota

	// StateOpen indicates the breaker has tripped due to consecutive
	// failures. Calls are rejected immediately with [ErrCircuitOpen] until
	// the reset timeout elapses.
	StateOpen

	// StateHalfOpen is the probe state entered after the reset timeout. A
	// limited number of calls are allowed through; if they all succeed the
	// breaker closes, any failure re-opens it.
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

// BreakerConfig holds tuning knobs for a [CircuitBreaker].
type BreakerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before transitioning
	// to half-open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probe calls required in the
	// half-open state before the breaker closes. Default: 3.
	HalfOpenMax int

	// Logger receives state-transition log records. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// CircuitBreaker implements the three-state circuit breaker pattern.
// It is safe for concurrent use from multiple goroutines.
type CircuitBreaker struct {
	cfg BreakerConfig

	mu            sync.Mutex
	state         State
	failures      int
	lastFailure   time.Time
	halfOpenCalls int
	halfOpenOK    int
}

// NewCircuitBreaker creates a [CircuitBreaker] with the supplied
// configuration. Zero-value config fields are replaced with defaults.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// Do runs fn if the breaker allows it. In the open state it returns
// [ErrCircuitOpen] without calling fn. In the half-open state a limited
// number of probe calls are permitted.
func (cb *CircuitBreaker) Do(fn func() error) error {
	probe, err := cb.allow()
	if err != nil {
		return err
	}

	err = fn()
	cb.observe(err, probe)
	return err
}

// allow decides whether a call may proceed and reports whether it is a
// half-open probe.
func (cb *CircuitBreaker) allow() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) < cb.cfg.ResetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.halfOpenCalls = 0
		cb.halfOpenOK = 0
		cb.cfg.Logger.Info("circuit breaker transitioning to half-open", "name", cb.cfg.Name)

	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.cfg.HalfOpenMax {
			// Probe budget exhausted; wait for outstanding probes.
			return false, ErrCircuitOpen
		}
	}

	if cb.state == StateHalfOpen {
		cb.halfOpenCalls++
		return true, nil
	}
	return false, nil
}

// observe applies the call outcome to the breaker state.
func (cb *CircuitBreaker) observe(callErr error, probe bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if callErr != nil {
		cb.lastFailure = time.Now()
		if probe {
			// Any failed probe re-opens immediately.
			cb.state = StateOpen
			cb.failures = cb.cfg.MaxFailures
			cb.cfg.Logger.Warn("circuit breaker re-opened from half-open", "name", cb.cfg.Name)
			return
		}
		cb.failures++
		if cb.state == StateClosed && cb.failures >= cb.cfg.MaxFailures {
			cb.state = StateOpen
			cb.cfg.Logger.Warn("circuit breaker opened",
				"name", cb.cfg.Name,
				"consecutive_failures", cb.failures)
		}
		return
	}

	if probe {
		cb.halfOpenOK++
		if cb.halfOpenOK >= cb.cfg.HalfOpenMax {
			cb.state = StateClosed
			cb.failures = 0
			cb.halfOpenCalls = 0
			cb.halfOpenOK = 0
			cb.cfg.Logger.Info("circuit breaker closed after successful probes", "name", cb.cfg.Name)
		}
		return
	}
	cb.failures = 0
}

// State returns the current [State] of the breaker. If the breaker is open
// and the reset timeout has elapsed, the returned state is [StateHalfOpen]
// (the actual transition happens on the next [Do] call).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.lastFailure) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset manually forces the breaker back to [StateClosed], clearing all
// failure counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.halfOpenCalls = 0
	cb.halfOpenOK = 0
	cb.cfg.Logger.Info("circuit breaker manually reset", "name", cb.cfg.Name)
}
