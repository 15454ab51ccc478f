package resilience

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// BreakerConfig holds circuit breaker configuration options.
type BreakerConfig struct {
	// Name labels the breaker in logs, errors and metrics.
	// Default: "remote"
	Name string

	// FailureThreshold is the number of failures in the CLOSED state that
	// opens the circuit. Must be > 0.
	// Default: 5
	FailureThreshold int

	// ResetTimeout is the cooldown spent OPEN before half-open probes are
	// allowed.
	// Default: 30 seconds
	ResetTimeout time.Duration

	// MonitoringPeriod is accepted for configuration compatibility and
	// reserved for a rolling-counter window. Counters are currently
	// lifetime-cumulative; no window is applied.
	// Default: 60 seconds
	MonitoringPeriod time.Duration

	// HalfOpenMaxCalls bounds the number of concurrent probes admitted while
	// HALF_OPEN. Must be > 0.
	// Default: 3
	HalfOpenMaxCalls int

	// OnStateChange is called whenever the breaker changes state. It runs
	// synchronously while the breaker lock is held; keep it fast and do not
	// call back into the breaker.
	OnStateChange func(name string, from, to CircuitState)

	// Logger for breaker operations.
	// Default: slog.Default()
	Logger *slog.Logger

	// Clock is the time source used for cooldown checks.
	// Default: the system clock
	Clock Clock
}

// BreakerOption is a functional option for configuring circuit breaker behavior.
type BreakerOption func(*BreakerConfig)

// DefaultBreakerConfig returns breaker configuration with sensible defaults.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		Name:             "remote",
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		MonitoringPeriod: 60 * time.Second,
		HalfOpenMaxCalls: 3,
		Logger:           slog.Default(),
	}
}

// WithBreakerName sets the breaker's name.
func WithBreakerName(name string) BreakerOption {
	return func(c *BreakerConfig) {
		c.Name = name
	}
}

// WithFailureThreshold sets the number of CLOSED-state failures that opens the
// circuit.
//
// Example:
//
//	resilience.WithFailureThreshold(3)
func WithFailureThreshold(threshold int) BreakerOption {
	return func(c *BreakerConfig) {
		if threshold > 0 {
			c.FailureThreshold = threshold
		}
	}
}

// WithResetTimeout sets the cooldown spent OPEN before probing resumes.
//
// Example:
//
//	resilience.WithResetTimeout(60 * time.Second)
func WithResetTimeout(timeout time.Duration) BreakerOption {
	return func(c *BreakerConfig) {
		c.ResetTimeout = timeout
	}
}

// WithMonitoringPeriod sets the monitoring period. See
// BreakerConfig.MonitoringPeriod for its current semantics.
func WithMonitoringPeriod(period time.Duration) BreakerOption {
	return func(c *BreakerConfig) {
		c.MonitoringPeriod = period
	}
}

// WithHalfOpenMaxCalls sets the maximum number of concurrent half-open probes.
//
// Example:
//
//	resilience.WithHalfOpenMaxCalls(1)
func WithHalfOpenMaxCalls(max int) BreakerOption {
	return func(c *BreakerConfig) {
		if max > 0 {
			c.HalfOpenMaxCalls = max
		}
	}
}

// WithStateChangeHandler sets a callback for breaker state changes.
//
// Example:
//
//	resilience.WithStateChangeHandler(func(name string, from, to resilience.CircuitState) {
//	    log.Printf("circuit %s changed from %s to %s", name, from, to)
//	})
func WithStateChangeHandler(fn func(name string, from, to CircuitState)) BreakerOption {
	return func(c *BreakerConfig) {
		c.OnStateChange = fn
	}
}

// WithBreakerLogger sets a custom logger for breaker operations.
func WithBreakerLogger(logger *slog.Logger) BreakerOption {
	return func(c *BreakerConfig) {
		c.Logger = logger
	}
}

// WithBreakerClock injects a time source, primarily for deterministic tests.
func WithBreakerClock(clock Clock) BreakerOption {
	return func(c *BreakerConfig) {
		c.Clock = clock
	}
}

// CallConfig holds the caller's configuration options.
type CallConfig struct {
	// Endpoint labels the remote endpoint for logs, errors and correlation.
	// Default: "remote"
	Endpoint string

	// MaxAttempts is the maximum number of attempts per call, including the
	// initial request.
	// Default: 3
	MaxAttempts int

	// PerAttemptTimeout bounds each transport invocation. Zero disables the
	// per-attempt deadline (the parent context still applies).
	// Default: 10 seconds
	PerAttemptTimeout time.Duration

	// MinInterAttemptInterval is the minimum spacing between consecutive
	// outbound attempts, enforced process-wide across concurrent calls
	// through the same limiter. Zero disables spacing.
	// Default: 100 milliseconds
	MinInterAttemptInterval time.Duration

	// Backoff configures the delay schedule between retries.
	Backoff BackoffConfig

	// Classifier decides retry eligibility per failure.
	// Default: PayloadClassifier
	Classifier ErrorClassifier

	// Logger for call and retry operations.
	// Default: slog.Default()
	Logger *slog.Logger

	// Clock is the time source for attempt timing.
	// Default: the system clock
	Clock Clock

	// Limiter overrides the inter-attempt rate limiter; set one shared
	// limiter on several callers to space attempts globally.
	Limiter *rate.Limiter

	// BreakerOptions configure the breaker NewResilientCaller constructs.
	// Ignored by NewResilientCallerWithBreaker.
	BreakerOptions []BreakerOption
}

// CallOption is a functional option for configuring the caller.
type CallOption func(*CallConfig)

// DefaultCallConfig returns caller configuration with sensible defaults.
func DefaultCallConfig() *CallConfig {
	return &CallConfig{
		Endpoint:                "remote",
		MaxAttempts:             3,
		PerAttemptTimeout:       10 * time.Second,
		MinInterAttemptInterval: 100 * time.Millisecond,
		Backoff:                 DefaultBackoffConfig(),
		Classifier:              DefaultErrorClassifier(),
		Logger:                  slog.Default(),
	}
}

// WithEndpoint sets the endpoint label carried in logs and terminal errors.
func WithEndpoint(endpoint string) CallOption {
	return func(c *CallConfig) {
		c.Endpoint = endpoint
	}
}

// WithCallMaxAttempts sets the total attempt budget per call.
//
// Example:
//
//	resilience.WithCallMaxAttempts(5) // try up to 5 times total
func WithCallMaxAttempts(attempts int) CallOption {
	return func(c *CallConfig) {
		c.MaxAttempts = attempts
	}
}

// WithPerAttemptTimeout bounds each transport invocation.
func WithPerAttemptTimeout(timeout time.Duration) CallOption {
	return func(c *CallConfig) {
		c.PerAttemptTimeout = timeout
	}
}

// WithMinInterAttemptInterval sets the minimum spacing between outbound
// attempts.
func WithMinInterAttemptInterval(interval time.Duration) CallOption {
	return func(c *CallConfig) {
		c.MinInterAttemptInterval = interval
	}
}

// WithBackoff sets the retry delay schedule.
//
// Example:
//
//	resilience.WithBackoff(resilience.BackoffConfig{
//	    Base:       500 * time.Millisecond,
//	    Max:        10 * time.Second,
//	    Multiplier: 2.0,
//	    Jitter:     true,
//	})
func WithBackoff(config BackoffConfig) CallOption {
	return func(c *CallConfig) {
		c.Backoff = config
	}
}

// WithClassifier sets a custom error classifier for retry decisions.
func WithClassifier(classifier ErrorClassifier) CallOption {
	return func(c *CallConfig) {
		c.Classifier = classifier
	}
}

// WithCallLogger sets a custom logger for call operations.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
//	resilience.WithCallLogger(logger)
func WithCallLogger(logger *slog.Logger) CallOption {
	return func(c *CallConfig) {
		c.Logger = logger
	}
}

// WithCallClock injects a time source, primarily for deterministic tests.
func WithCallClock(clock Clock) CallOption {
	return func(c *CallConfig) {
		c.Clock = clock
	}
}

// WithAttemptLimiter injects a shared rate limiter so several callers space
// their outbound attempts against one process-wide schedule.
func WithAttemptLimiter(limiter *rate.Limiter) CallOption {
	return func(c *CallConfig) {
		c.Limiter = limiter
	}
}

// WithCallBreakerOptions forwards options to the breaker NewResilientCaller
// constructs.
func WithCallBreakerOptions(opts ...BreakerOption) CallOption {
	return func(c *CallConfig) {
		c.BreakerOptions = append(c.BreakerOptions, opts...)
	}
}
