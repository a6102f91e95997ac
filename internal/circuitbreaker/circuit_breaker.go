// Package circuitbreaker implements the Closed/Open/Half-Open state
// machine shared by the coordination engine's two per-call protections:
// internal/guard trips one breaker per session to stop a runaway
// reasoning loop from hammering the backends, and internal/embeddings
// wraps the embedding provider call in one so a flaky provider doesn't
// take down every SemanticSearch/StoreDocument call with it.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// State is one node of the Closed -> Open -> Half-Open -> Closed cycle.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

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

// Config tunes when a breaker trips and how it probes for recovery.
type Config struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker from Closed to Open.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive successes in
	// Half-Open before the breaker closes again.
	SuccessThreshold int
	// Timeout is how long the breaker stays Open before it lets one
	// probe request through as Half-Open.
	Timeout time.Duration
	// MaxConcurrentRequests caps in-flight probe requests while Half-Open.
	MaxConcurrentRequests int
	// OnStateChange, if set, is called on every state transition.
	OnStateChange func(from, to State)
}

// DefaultConfig returns a general-purpose breaker configuration; callers
// that need session- or provider-specific thresholds build their own.
func DefaultConfig() *Config {
	return &Config{
		FailureThreshold:      5,
		SuccessThreshold:      2,
		Timeout:               30 * time.Second,
		MaxConcurrentRequests: 1,
	}
}

// CircuitBreaker guards one call site against a failing dependency.
type CircuitBreaker struct {
	config *Config

	state           int32 // atomic State
	lastFailureTime int64 // atomic time.Time as unix nano

	consecutiveFailures  int32
	consecutiveSuccesses int32
	halfOpenRequests     int32

	totalRequests   int64
	totalFailures   int64
	totalSuccesses  int64
	totalRejections int64
}

// New builds a CircuitBreaker from config, falling back to DefaultConfig
// when config is nil.
func New(config *Config) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}

	return &CircuitBreaker{
		config: config,
		state:  int32(StateClosed),
	}
}

// Execute runs fn under breaker protection, rejecting it outright with
// ErrCircuitOpen when the breaker is tripped.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	return cb.ExecuteWithFallback(ctx, fn, nil)
}

// ExecuteWithFallback is Execute, but a rejected or failed call is routed
// through fallback instead of returning the raw error.
func (cb *CircuitBreaker) ExecuteWithFallback(ctx context.Context, fn func(context.Context) error, fallback func(context.Context, error) error) error {
	cbErr := cb.canExecute()
	if cbErr != nil {
		atomic.AddInt64(&cb.totalRejections, 1)
		if fallback != nil {
			return fallback(ctx, cbErr)
		}
		return cbErr
	}

	atomic.AddInt64(&cb.totalRequests, 1)

	err := fn(ctx)
	cb.recordResult(err)

	if err != nil && fallback != nil {
		return fallback(ctx, err)
	}

	return err
}

// canExecute decides whether the current state admits a new call.
func (cb *CircuitBreaker) canExecute() error {
	state := cb.getState()

	switch state {
	case StateClosed:
		return nil

	case StateOpen:
		if cb.shouldTransitionToHalfOpen() {
			cb.transitionTo(StateHalfOpen)
			return nil
		}
		return ErrCircuitOpen

	case StateHalfOpen:
		current := atomic.AddInt32(&cb.halfOpenRequests, 1)
		if current > int32(cb.config.MaxConcurrentRequests) {
			atomic.AddInt32(&cb.halfOpenRequests, -1)
			return ErrTooManyConcurrentRequests
		}
		return nil

	default:
		return fmt.Errorf("unknown circuit breaker state: %v", state)
	}
}

// recordResult updates failure/success counters and clears the Half-Open
// probe slot fn just occupied.
func (cb *CircuitBreaker) recordResult(err error) {
	state := cb.getState()

	if err != nil {
		cb.recordFailure()
	} else {
		cb.recordSuccess()
	}

	if state == StateHalfOpen {
		atomic.AddInt32(&cb.halfOpenRequests, -1)
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	atomic.AddInt64(&cb.totalSuccesses, 1)

	switch cb.getState() {
	case StateClosed:
		atomic.StoreInt32(&cb.consecutiveFailures, 0)

	case StateHalfOpen:
		successes := atomic.AddInt32(&cb.consecutiveSuccesses, 1)
		if successes >= int32(cb.config.SuccessThreshold) {
			cb.transitionTo(StateClosed)
		}
	case StateOpen:
		// Successes can't reach the breaker while it's rejecting calls
		// outright; this branch only exists for getState()'s symmetry.
	}
}

func (cb *CircuitBreaker) recordFailure() {
	atomic.AddInt64(&cb.totalFailures, 1)
	atomic.StoreInt64(&cb.lastFailureTime, time.Now().UnixNano())

	switch cb.getState() {
	case StateClosed:
		failures := atomic.AddInt32(&cb.consecutiveFailures, 1)
		if failures >= int32(cb.config.FailureThreshold) {
			cb.transitionTo(StateOpen)
		}
	case StateOpen:
		// Already open.
	case StateHalfOpen:
		// A single failed probe reopens the breaker.
		cb.transitionTo(StateOpen)
	}
}

// shouldTransitionToHalfOpen reports whether Timeout has elapsed since
// the last recorded failure.
func (cb *CircuitBreaker) shouldTransitionToHalfOpen() bool {
	lastFailure := atomic.LoadInt64(&cb.lastFailureTime)
	if lastFailure == 0 {
		return true
	}

	elapsed := time.Since(time.Unix(0, lastFailure))
	return elapsed >= cb.config.Timeout
}

func (cb *CircuitBreaker) transitionTo(newState State) {
	oldState := State(atomic.SwapInt32(&cb.state, int32(newState)))

	if oldState == newState {
		return
	}

	switch newState {
	case StateClosed:
		atomic.StoreInt32(&cb.consecutiveFailures, 0)
		atomic.StoreInt32(&cb.consecutiveSuccesses, 0)

	case StateOpen:
		atomic.StoreInt32(&cb.consecutiveSuccesses, 0)

	case StateHalfOpen:
		atomic.StoreInt32(&cb.consecutiveSuccesses, 0)
		atomic.StoreInt32(&cb.halfOpenRequests, 0)
	}

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(oldState, newState)
	}
}

func (cb *CircuitBreaker) getState() State {
	return State(atomic.LoadInt32(&cb.state))
}

// GetState returns the breaker's current state.
func (cb *CircuitBreaker) GetState() State {
	return cb.getState()
}

// Stats is a snapshot of a breaker's lifetime counters.
type Stats struct {
	State             State
	TotalRequests     int64
	TotalFailures     int64
	TotalSuccesses    int64
	TotalRejections   int64
	FailureRate       float64
	LastFailureTime   time.Time
	ConsecutiveErrors int32
}

// GetStats snapshots the breaker's counters.
func (cb *CircuitBreaker) GetStats() Stats {
	requests := atomic.LoadInt64(&cb.totalRequests)
	failures := atomic.LoadInt64(&cb.totalFailures)

	var failureRate float64
	if requests > 0 {
		failureRate = float64(failures) / float64(requests)
	}

	lastFailureNano := atomic.LoadInt64(&cb.lastFailureTime)
	var lastFailureTime time.Time
	if lastFailureNano > 0 {
		lastFailureTime = time.Unix(0, lastFailureNano)
	}

	return Stats{
		State:             cb.getState(),
		TotalRequests:     requests,
		TotalFailures:     failures,
		TotalSuccesses:    atomic.LoadInt64(&cb.totalSuccesses),
		TotalRejections:   atomic.LoadInt64(&cb.totalRejections),
		FailureRate:       failureRate,
		LastFailureTime:   lastFailureTime,
		ConsecutiveErrors: atomic.LoadInt32(&cb.consecutiveFailures),
	}
}

// Reset forces the breaker back to Closed, zeroing its consecutive
// failure/success counts, Half-Open probe count and last-failure time.
// The lifetime totals reported by GetStats are kept.
func (cb *CircuitBreaker) Reset() {
	atomic.StoreInt32(&cb.state, int32(StateClosed))
	atomic.StoreInt32(&cb.consecutiveFailures, 0)
	atomic.StoreInt32(&cb.consecutiveSuccesses, 0)
	atomic.StoreInt32(&cb.halfOpenRequests, 0)
	atomic.StoreInt64(&cb.lastFailureTime, 0)
}

var (
	ErrCircuitOpen               = errors.New("circuit breaker is open")
	ErrTooManyConcurrentRequests = errors.New("too many concurrent requests in half-open state")
)
