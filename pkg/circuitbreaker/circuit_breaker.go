package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State represents the state of a circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker stops calling a failing dependency for a cool-down period.
// After the timeout one trial call is let through; success closes the circuit.
type CircuitBreaker struct {
	name        string
	maxFailures int
	timeout     time.Duration
	now         func() time.Time

	mu              sync.Mutex
	state           State
	failures        int
	lastFailureTime time.Time
	probing         bool

	logger *logrus.Logger
}

// New creates a circuit breaker that opens after maxFailures consecutive failures
func New(name string, maxFailures int, timeout time.Duration, logger *logrus.Logger) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &CircuitBreaker{
		name:        name,
		maxFailures: maxFailures,
		timeout:     timeout,
		now:         time.Now,
		state:       StateClosed,
		logger:      logger,
	}
}

// Execute runs fn if the circuit allows it and records the outcome
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.allow() {
		return &OpenError{Name: cb.name}
	}

	err := fn(ctx)
	if err != nil {
		cb.onFailure()
		return err
	}
	cb.onSuccess()
	return nil
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) < cb.timeout {
			return false
		}
		cb.state = StateHalfOpen
		cb.probing = true
		cb.logger.WithFields(logrus.Fields{
			"circuit_breaker": cb.name,
			"state":           StateHalfOpen.String(),
		}).Info("Circuit breaker probing dependency")
		return true
	case StateHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	default:
		return false
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateClosed {
		cb.logger.WithFields(logrus.Fields{
			"circuit_breaker": cb.name,
			"state":           StateClosed.String(),
		}).Info("Circuit breaker closed after successful recovery")
	}
	cb.state = StateClosed
	cb.failures = 0
	cb.probing = false
}

func (cb *CircuitBreaker) onFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailureTime = cb.now()
	cb.probing = false

	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		if cb.state != StateOpen {
			cb.logger.WithFields(logrus.Fields{
				"circuit_breaker": cb.name,
				"failures":        cb.failures,
				"state":           StateOpen.String(),
			}).Warn("Circuit breaker opened due to failures")
		}
		cb.state = StateOpen
	}
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// OpenError is returned when a call is rejected without reaching the dependency
type OpenError struct {
	Name string
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is open", e.Name)
}

// IsOpen reports whether err is a rejection from an open circuit
func IsOpen(err error) bool {
	var openErr *OpenError
	return errors.As(err, &openErr)
}
