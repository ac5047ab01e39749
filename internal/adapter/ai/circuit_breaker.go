package ai

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fiszki/kreator/internal/domain"
)

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	// CircuitClosed indicates the circuit is allowing requests to pass through.
	CircuitClosed CircuitState = iota
	// CircuitOpen indicates the circuit is failing fast until the cool-down ends.
	CircuitOpen
)

const (
	defaultFailureThreshold = 5
	defaultCooldown         = 30 * time.Second
)

// String returns a string representation of the circuit state
func (cs CircuitState) String() string {
	switch cs {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	default:
		return "unknown"
	}
}

// CircuitBreaker counts consecutive transport failures of one provider and,
// once the threshold is reached, rejects attempts until the cool-down has
// elapsed. The half-open check happens lazily in Allow.
type CircuitBreaker struct {
	mu               sync.Mutex
	name             string
	failureThreshold int
	cooldown         time.Duration
	now              func() time.Time
	onChange         func(open bool)

	state         CircuitState
	failureCount  int
	disabledUntil time.Time
}

// BreakerOption customizes a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) BreakerOption {
	return func(cb *CircuitBreaker) {
		if now != nil {
			cb.now = now
		}
	}
}

// WithStateListener is invoked, outside the lock, whenever the circuit opens
// or closes.
func WithStateListener(fn func(open bool)) BreakerOption {
	return func(cb *CircuitBreaker) { cb.onChange = fn }
}

// NewCircuitBreaker creates a breaker. Non-positive threshold or cool-down
// fall back to 5 failures and 30 seconds.
func NewCircuitBreaker(name string, threshold int, cooldown time.Duration, opts ...BreakerOption) *CircuitBreaker {
	if threshold <= 0 {
		threshold = defaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	cb := &CircuitBreaker{
		name:             name,
		failureThreshold: threshold,
		cooldown:         cooldown,
		now:              time.Now,
		state:            CircuitClosed,
	}
	for _, o := range opts {
		o(cb)
	}
	return cb
}

// Allow reports whether an attempt may go out. While open and before the
// cool-down ends it returns a network error; the first call after the
// cool-down closes the circuit and resets the failure counter.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	if cb.state == CircuitOpen {
		if cb.now().Before(cb.disabledUntil) {
			until := cb.disabledUntil
			cb.mu.Unlock()
			return &domain.AIError{
				Kind:       domain.ErrNetwork,
				Message:    "service temporarily disabled",
				RetryAfter: until.Sub(cb.now()),
			}
		}
		cb.state = CircuitClosed
		cb.failureCount = 0
		cb.mu.Unlock()
		slog.Info("circuit breaker closed after cool-down", slog.String("provider", cb.name))
		cb.notify(false)
		return nil
	}
	cb.mu.Unlock()
	return nil
}

// RecordSuccess resets the failure counter regardless of state.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	cb.failureCount = 0
	cb.mu.Unlock()
}

// RecordFailure counts one failed attempt and opens the circuit at the
// threshold. The disabled window only ever moves forward.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	cb.failureCount++
	if cb.failureCount < cb.failureThreshold {
		cb.mu.Unlock()
		return
	}
	until := cb.now().Add(cb.cooldown)
	if until.After(cb.disabledUntil) {
		cb.disabledUntil = until
	}
	opened := cb.state != CircuitOpen
	cb.state = CircuitOpen
	failures := cb.failureCount
	cb.mu.Unlock()

	if opened {
		slog.Warn("circuit breaker opened due to consecutive failures",
			slog.String("provider", cb.name),
			slog.Int("failure_count", failures),
			slog.Int("threshold", cb.failureThreshold),
			slog.Duration("cooldown", cb.cooldown))
		cb.notify(true)
	}
}

// State returns the stored state. An open circuit whose cool-down elapsed is
// still reported open until the next Allow.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Available reports whether Allow would currently let a call through,
// without changing state.
func (cb *CircuitBreaker) Available() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state == CircuitClosed || !cb.now().Before(cb.disabledUntil)
}

// BreakerStats is a point-in-time snapshot used for readiness and logs.
type BreakerStats struct {
	Name          string    `json:"name"`
	State         string    `json:"state"`
	FailureCount  int       `json:"failure_count"`
	Threshold     int       `json:"threshold"`
	DisabledUntil time.Time `json:"disabled_until,omitempty"`
}

// Stats returns breaker statistics.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerStats{
		Name:          cb.name,
		State:         cb.state.String(),
		FailureCount:  cb.failureCount,
		Threshold:     cb.failureThreshold,
		DisabledUntil: cb.disabledUntil,
	}
}

func (cb *CircuitBreaker) notify(open bool) {
	if cb.onChange != nil {
		cb.onChange(open)
	}
}
