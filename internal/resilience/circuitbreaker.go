// Package resilience keeps unreliable collaborators from stalling the
// pipeline.
//
// [CircuitBreaker] stops the lifecycle poller from hammering a game client
// that is not running: after a run of failed requests it rejects calls
// outright for a cool-down period, then lets a few probes through to find out
// whether the client came back. [Select] picks the first usable backend out
// of an ordered list of candidates at startup.
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

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker is
// rejecting calls.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker; any failure re-opens it.
	StateHalfOpen
)

var stateNames = [...]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker]. Zero fields
// take their defaults.
type CircuitBreakerConfig struct {
	// Name labels log lines and state-change callbacks.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close again,
	// and the number of probes admitted per half-open period. Default: 3.
	HalfOpenMax int

	// Neutral reports errors that say nothing about the remote side and are
	// counted neither as failure nor as success. Default: context
	// cancellation, so shutting down mid-request never trips the breaker.
	Neutral func(error) bool

	// OnStateChange, if set, is called after every transition with the
	// breaker's lock released.
	OnStateChange func(name string, from, to State)

	// Now overrides the clock. Tests only.
	Now func() time.Time
}

func isCancellation(err error) bool { return errors.Is(err, context.Canceled) }

// CircuitBreaker implements the closed/open/half-open breaker pattern.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    State
	failures int       // consecutive failures while closed
	openedAt time.Time // last transition to open
	inFlight int       // admitted half-open probes
	probesOK int       // successful half-open probes
}

// NewCircuitBreaker creates a closed [CircuitBreaker].
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.Neutral == nil {
		cfg.Neutral = isCancellation
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Execute runs fn if the breaker admits it and records the outcome. A ctx that
// is already done is reported without calling fn or touching the counters.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	cb.record(probe, err)
	return err
}

// Call runs fn through cb and returns its result. A rejected call returns the
// zero value and [ErrCircuitOpen].
func Call[T any](ctx context.Context, cb *CircuitBreaker, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

// admit reports whether a call may proceed and whether it is a half-open
// probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	var transition func()
	if cb.state == StateOpen {
		if cb.cfg.Now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
		transition = cb.setLocked(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.inFlight >= cb.cfg.HalfOpenMax {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
		cb.inFlight++
		probe = true
	}
	cb.mu.Unlock()

	if transition != nil {
		transition()
	}
	return probe, nil
}

func (cb *CircuitBreaker) record(probe bool, err error) {
	cb.mu.Lock()
	var transition func()
	switch {
	case err != nil && cb.cfg.Neutral(err):
		if probe {
			cb.inFlight--
		}
	case err != nil:
		cb.failures++
		if probe || cb.failures >= cb.cfg.MaxFailures {
			transition = cb.setLocked(StateOpen)
			slog.Warn("circuit breaker opened", "name", cb.cfg.Name, "consecutive_failures", cb.failures, "err", err)
		}
	case probe:
		cb.probesOK++
		if cb.probesOK >= cb.cfg.HalfOpenMax {
			transition = cb.setLocked(StateClosed)
			slog.Info("circuit breaker closed", "name", cb.cfg.Name)
		}
	default:
		cb.failures = 0
	}
	cb.mu.Unlock()

	if transition != nil {
		transition()
	}
}

// setLocked moves to state s and resets the counters that belong to it. The
// returned func fires the state-change callback and must be called after
// cb.mu is released. cb.mu must be held.
func (cb *CircuitBreaker) setLocked(s State) func() {
	from := cb.state
	cb.state = s
	switch s {
	case StateOpen:
		cb.openedAt = cb.cfg.Now()
	case StateHalfOpen:
		cb.inFlight, cb.probesOK = 0, 0
	case StateClosed:
		cb.failures, cb.inFlight, cb.probesOK = 0, 0, 0
	}
	if from == s || cb.cfg.OnStateChange == nil {
		return nil
	}
	return func() { cb.cfg.OnStateChange(cb.cfg.Name, from, s) }
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	transition := cb.setLocked(StateClosed)
	cb.mu.Unlock()
	if transition != nil {
		transition()
	}
}
