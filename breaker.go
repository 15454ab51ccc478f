package resilience

import (
	"log/slog"
	"sync"
	"time"
)

// CircuitState represents the state of the circuit breaker.
type CircuitState int

const (
	// StateClosed means the circuit is closed and requests flow normally.
	StateClosed CircuitState = iota

	// StateOpen means the circuit is open and requests are rejected immediately.
	StateOpen

	// StateHalfOpen means the circuit allows a bounded number of probes to
	// test whether the remote has recovered.
	StateHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
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

// CircuitMetrics is a read-only snapshot of the breaker's counters.
//
// FailureCount and SuccessCount are windowed: FailureCount accumulates since
// the breaker last entered CLOSED, SuccessCount resets to zero whenever the
// breaker leaves HALF_OPEN. TotalRequests and TotalFailures are lifetime
// counters and only Reset zeroes them.
type CircuitMetrics struct {
	State           CircuitState `json:"state"`
	FailureCount    int          `json:"failure_count"`
	SuccessCount    int          `json:"success_count"`
	TotalRequests   uint64       `json:"total_requests"`
	TotalFailures   uint64       `json:"total_failures"`
	LastStateChange time.Time    `json:"last_state_change"`
}

// SuccessRate is the fraction of requests that succeeded, derived from the
// snapshot counters. Zero when no requests have been observed.
func (m CircuitMetrics) SuccessRate() float64 {
	if m.TotalRequests == 0 {
		return 0
	}
	return float64(m.SuccessCount) / float64(m.TotalRequests)
}

// CircuitBreaker guards execution of an operation against a failing remote.
// After FailureThreshold failures it opens and fails fast; once ResetTimeout
// elapses it admits up to HalfOpenMaxCalls probes, closing again on the first
// probe success.
//
// A single instance may be shared by many concurrent calls; all state lives
// behind one mutex and the open-state rejection path does nothing but a
// counter read under that lock. Cooldown expiry is checked lazily on the next
// Execute, so no background timers run.
type CircuitBreaker[T any] struct {
	name   string
	config *BreakerConfig
	clock  Clock
	logger *slog.Logger

	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	successCount    int
	totalRequests   uint64
	totalFailures   uint64
	lastStateChange time.Time
	halfOpenCalls   int
}

// NewCircuitBreaker creates a circuit breaker with the provided options.
//
// Example:
//
//	cb := resilience.NewCircuitBreaker[*http.Response](
//	    resilience.WithBreakerName("billing-api"),
//	    resilience.WithFailureThreshold(5),
//	    resilience.WithResetTimeout(30*time.Second),
//	)
func NewCircuitBreaker[T any](opts ...BreakerOption) *CircuitBreaker[T] {
	config := DefaultBreakerConfig()
	for _, opt := range opts {
		opt(config)
	}

	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Clock == nil {
		config.Clock = systemClock{}
	}

	return &CircuitBreaker[T]{
		name:            config.Name,
		config:          config,
		clock:           config.Clock,
		logger:          config.Logger,
		state:           StateClosed,
		lastStateChange: config.Clock.Now(),
	}
}

// Execute runs the operation under the breaker's protection.
//
// While OPEN and still inside the cooldown it returns a CircuitOpenError
// without invoking the operation. Once the cooldown elapses the breaker moves
// to HALF_OPEN and admits up to HalfOpenMaxCalls concurrent probes; excess
// probes receive a ProbeLimitError. The breaker records exactly one
// success-or-failure verdict per admitted operation.
func (cb *CircuitBreaker[T]) Execute(operation func() (T, error)) (T, error) {
	var zero T

	if err := cb.beforeCall(); err != nil {
		return zero, err
	}

	resp, err := operation()
	cb.afterCall(err)
	if err != nil {
		return zero, err
	}
	return resp, nil
}

func (cb *CircuitBreaker[T]) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.clock.Now()

	switch cb.state {
	case StateOpen:
		remaining := cb.config.ResetTimeout - now.Sub(cb.lastStateChange)
		if remaining > 0 {
			return &CircuitOpenError{
				Breaker:    cb.name,
				RetryAfter: remaining,
				Metrics:    cb.metricsLocked(),
			}
		}
		// Cooldown elapsed: this call becomes the first half-open probe.
		cb.setState(StateHalfOpen, now)
		cb.halfOpenCalls = 1
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.config.HalfOpenMaxCalls {
			return &ProbeLimitError{Breaker: cb.name, MaxCalls: cb.config.HalfOpenMaxCalls}
		}
		cb.halfOpenCalls++
	}

	return nil
}

func (cb *CircuitBreaker[T]) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.clock.Now()

	if cb.state == StateHalfOpen && cb.halfOpenCalls > 0 {
		cb.halfOpenCalls--
	}

	cb.totalRequests++

	if err != nil {
		cb.totalFailures++
		cb.failureCount++

		switch cb.state {
		case StateHalfOpen:
			// Any probe failure restarts the cooldown.
			cb.setState(StateOpen, now)
		case StateClosed:
			if cb.failureCount >= cb.config.FailureThreshold {
				cb.setState(StateOpen, now)
			}
		}
		return
	}

	cb.successCount++
	if cb.state == StateHalfOpen {
		// A single probe success is enough to close.
		cb.setState(StateClosed, now)
	}
}

// setState transitions the breaker and resets the windowed counters that
// belong to the state being left. Callers must hold cb.mu.
func (cb *CircuitBreaker[T]) setState(next CircuitState, now time.Time) {
	if cb.state == next {
		return
	}
	prev := cb.state
	cb.state = next
	cb.lastStateChange = now
	cb.halfOpenCalls = 0

	switch next {
	case StateClosed:
		cb.failureCount = 0
		cb.successCount = 0
	case StateHalfOpen:
		cb.successCount = 0
	case StateOpen:
		if prev == StateHalfOpen {
			cb.successCount = 0
		}
	}

	cb.logger.Warn("circuit breaker state changed",
		"name", cb.name,
		"from", prev.String(),
		"to", next.String())

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, prev, next)
	}
}

// ForceState is an administrative override for operational recovery and test
// setup. It moves the breaker to the given state regardless of the normal
// transition rules; counters other than the windowed resets are preserved.
func (cb *CircuitBreaker[T]) ForceState(state CircuitState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(state, cb.clock.Now())
}

// Reset returns the breaker to CLOSED with every counter zeroed, including the
// lifetime totals.
func (cb *CircuitBreaker[T]) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	prev := cb.state
	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.totalRequests = 0
	cb.totalFailures = 0
	cb.halfOpenCalls = 0
	cb.lastStateChange = cb.clock.Now()

	cb.logger.Info("circuit breaker reset",
		"name", cb.name,
		"from", prev.String())
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker[T]) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Metrics returns a read-only snapshot of the breaker's counters.
func (cb *CircuitBreaker[T]) Metrics() CircuitMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.metricsLocked()
}

// Name returns the breaker's configured name.
func (cb *CircuitBreaker[T]) Name() string {
	return cb.name
}

func (cb *CircuitBreaker[T]) metricsLocked() CircuitMetrics {
	return CircuitMetrics{
		State:           cb.state,
		FailureCount:    cb.failureCount,
		SuccessCount:    cb.successCount,
		TotalRequests:   cb.totalRequests,
		TotalFailures:   cb.totalFailures,
		LastStateChange: cb.lastStateChange,
	}
}
