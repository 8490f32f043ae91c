// Package resilience provides circuit breaker and provider failover primitives
// for the I/O edges of the voice pipeline.
//
// [CircuitBreaker] is a three-state breaker (closed → open → half-open) that
// stops a failing rule-set source or speech backend from being hammered on
// every request. [FallbackGroup] composes several instances of one provider
// type, each behind its own breaker, so that a failing primary is bypassed in
// favour of healthy fallbacks. [TTSFallback] and [STTFallback] specialise it
// for the speech provider interfaces.
//
// Nothing in this package retries: each call is attempted at most once per
// backend.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is
// open and the reset timeout has not yet elapsed, or when the half-open probe
// budget is exhausted.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed is the normal operating state. All calls are forwarded.
	StateClosed State = iota

	// StateOpen indicates the breaker has tripped due to consecutive failures.
	// Calls are rejected with [ErrCircuitOpen] until the reset timeout elapses.
	StateOpen

	// StateHalfOpen is the probe state entered after the reset timeout. Up to
	// HalfOpenMax calls are let through; that many successes close the breaker,
	// any failure re-opens it.
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
	// Name is a human-readable label used in log messages.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before transitioning to
	// half-open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probe calls allowed in the half-open state.
	// Default: 1.
	HalfOpenMax int

	// IsFailure decides whether an error returned by the guarded function
	// counts against the breaker. Default: every non-nil error except
	// [context.Canceled], since a caller hanging up says nothing about the
	// backend's health.
	IsFailure func(error) bool

	// OnStateChange, if set, is called after every transition with the
	// breaker's lock released.
	OnStateChange func(name string, from, to State)

	// Now returns the current time. Default: [time.Now].
	Now func() time.Time
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name          string
	maxFailures   int
	resetTimeout  time.Duration
	halfOpenMax   int
	isFailure     func(error) bool
	onStateChange func(name string, from, to State)
	now           func() time.Time

	mu               sync.Mutex
	state            State
	consecutiveFails int
	openedAt         time.Time
	probesInFlight   int
	probeSuccesses   int
}

// NewCircuitBreaker creates a [CircuitBreaker] with the supplied configuration.
// Zero-value config fields are replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = defaultIsFailure
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		resetTimeout:  cfg.ResetTimeout,
		halfOpenMax:   cfg.HalfOpenMax,
		isFailure:     cfg.IsFailure,
		onStateChange: cfg.OnStateChange,
		now:           cfg.Now,
		state:         StateClosed,
	}
}

func defaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// Name returns the label the breaker was configured with.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn if the breaker allows it and records the outcome.
//
// If ctx is already done, Execute returns ctx.Err() without calling fn and
// without touching the failure count. In the open state it returns
// [ErrCircuitOpen] without calling fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	probe, transition, err := cb.admit()
	cb.notify(transition)
	if err != nil {
		return err
	}

	err = fn(ctx)

	cb.notify(cb.record(probe, err))
	return err
}

// transition is a pending OnStateChange notification; from == to means none.
type transition struct{ from, to State }

// admit decides whether a call may proceed. probe reports whether the call is
// a half-open probe.
func (cb *CircuitBreaker) admit() (probe bool, t transition, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	t = transition{cb.state, cb.state}
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return false, t, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probesInFlight = 0
		cb.probeSuccesses = 0
		t.to = StateHalfOpen
		slog.Info("resilience: circuit breaker half-open", "name", cb.name)
		fallthrough
	case StateHalfOpen:
		if cb.probesInFlight >= cb.halfOpenMax {
			return false, t, ErrCircuitOpen
		}
		cb.probesInFlight++
		return true, t, nil
	}
	return false, t, nil
}

// record books the outcome of an admitted call.
func (cb *CircuitBreaker) record(probe bool, err error) transition {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	t := transition{cb.state, cb.state}
	failed := err != nil && cb.isFailure(err)

	switch {
	case probe && cb.state != StateHalfOpen:
		// A concurrent probe already decided the outcome.
	case probe && failed:
		cb.trip()
		slog.Warn("resilience: circuit breaker re-opened", "name", cb.name, "err", err)
	case probe && err == nil:
		cb.probeSuccesses++
		if cb.probeSuccesses >= cb.halfOpenMax {
			cb.state = StateClosed
			cb.consecutiveFails = 0
			slog.Info("resilience: circuit breaker closed", "name", cb.name)
		}
	case probe:
		// Non-counting error: free the probe slot for another attempt.
		cb.probesInFlight--
	case failed:
		cb.consecutiveFails++
		if cb.state == StateClosed && cb.consecutiveFails >= cb.maxFailures {
			cb.trip()
			slog.Warn("resilience: circuit breaker opened",
				"name", cb.name,
				"consecutive_failures", cb.consecutiveFails,
				"err", err,
			)
		}
	case err == nil:
		cb.consecutiveFails = 0
	}
	t.to = cb.state
	return t
}

// trip moves the breaker to open. Must be called with cb.mu held.
func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
	cb.probesInFlight = 0
	cb.probeSuccesses = 0
}

func (cb *CircuitBreaker) notify(t transition) {
	if cb.onStateChange != nil && t.from != t.to {
		cb.onStateChange(cb.name, t.from, t.to)
	}
}

// State returns the current [State] of the breaker. If the breaker is open and
// the reset timeout has elapsed, the returned state is [StateHalfOpen] (the
// actual transition happens on the next [CircuitBreaker.Execute] call).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed], clearing all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	t := transition{cb.state, StateClosed}
	cb.state = StateClosed
	cb.consecutiveFails = 0
	cb.probesInFlight = 0
	cb.probeSuccesses = 0
	cb.mu.Unlock()

	slog.Info("resilience: circuit breaker reset", "name", cb.name)
	cb.notify(t)
}
