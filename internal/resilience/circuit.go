// Package resilience provides retry and circuit breaking for calls to the
// Overpass and Nominatim services and for batch-level place retries.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitState is the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects requests until ResetTimeout elapses.
	CircuitOpen
	// CircuitHalfOpen lets probe requests through.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected by an open circuit.
var ErrCircuitOpen = eris.New("resilience: circuit breaker is open")

// CircuitBreakerConfig controls circuit breaker behavior.
type CircuitBreakerConfig struct {
	// Name identifies the guarded service in logs.
	Name string

	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open before probing.
	ResetTimeout time.Duration

	// HalfOpenMaxProbes is the number of successful probes needed to close again.
	HalfOpenMaxProbes int

	// ShouldTrip decides which errors count as failures. If nil, only
	// transient errors trip the breaker; an empty Overpass result is not
	// an outage.
	ShouldTrip func(err error) bool
}

// DefaultCircuitBreakerConfig returns the defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:  5,
		ResetTimeout:      30 * time.Second,
		HalfOpenMaxProbes: 1,
	}
}

// CircuitBreaker guards one upstream service. It is safe for concurrent use.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
	probesOK int
	nowFunc  func() time.Time
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.HalfOpenMaxProbes <= 0 {
		cfg.HalfOpenMaxProbes = def.HalfOpenMaxProbes
	}
	if cfg.ShouldTrip == nil {
		cfg.ShouldTrip = IsTransient
	}
	return &CircuitBreaker{cfg: cfg, nowFunc: time.Now}
}

// Execute runs fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := ExecuteVal(ctx, cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// ExecuteVal is Execute for functions that return a value.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := cb.allow(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	cb.record(err)
	if err != nil {
		return zero, err
	}
	return val, nil
}

// State returns the current state, reporting half-open once the reset timeout
// has elapsed on an open circuit.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.nowFunc().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return CircuitHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != CircuitOpen {
		return nil
	}
	if cb.nowFunc().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		cb.transition(CircuitHalfOpen)
		return nil
	}
	return ErrCircuitOpen
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil || !cb.cfg.ShouldTrip(err) {
		switch cb.state {
		case CircuitHalfOpen:
			cb.probesOK++
			if cb.probesOK >= cb.cfg.HalfOpenMaxProbes {
				cb.transition(CircuitClosed)
			}
		case CircuitClosed:
			cb.failures = 0
		}
		return
	}

	cb.failures++
	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.openedAt = cb.nowFunc()
			cb.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.openedAt = cb.nowFunc()
		cb.transition(CircuitOpen)
	}
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	if to != CircuitHalfOpen {
		cb.probesOK = 0
	}
	if to == CircuitClosed {
		cb.failures = 0
	}
	zap.L().Info("circuit state change",
		zap.String("service", cb.cfg.Name),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
}
