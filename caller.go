package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

// ResilientCaller composes the circuit breaker, exponential backoff, error
// classifier and a caller-supplied transport into a single call-with-resilience
// operation.
//
// The whole retry loop executes as one operation under the breaker, so the
// breaker observes exactly one success-or-failure verdict per top-level call:
// internal retry churn never pushes it toward OPEN faster than one failure per
// logical call.
type ResilientCaller[Req, Resp any] struct {
	transport  Transport[Req, Resp]
	breaker    *CircuitBreaker[Resp]
	backoff    *ExponentialBackoff
	classifier ErrorClassifier
	limiter    *rate.Limiter
	config     *CallConfig
	logger     *slog.Logger
	clock      Clock
	stats      *callStats
}

// callStats tracks call and attempt statistics for the caller.
type callStats struct {
	mu              sync.RWMutex
	totalCalls      int64
	totalAttempts   int64
	totalRetries    int64
	totalSuccesses  int64
	totalFailures   int64
	totalLatency    time.Duration
	lastAttemptTime time.Time
	lastError       error
}

// NewResilientCaller creates a caller around a transport. A dedicated circuit
// breaker is constructed from the configured breaker options; use
// NewResilientCallerWithBreaker to share one breaker between callers.
//
// Example:
//
//	caller := resilience.NewResilientCaller(transport,
//	    resilience.WithEndpoint("billing-api"),
//	    resilience.WithCallMaxAttempts(4),
//	    resilience.WithPerAttemptTimeout(5*time.Second),
//	)
func NewResilientCaller[Req, Resp any](
	transport Transport[Req, Resp],
	opts ...CallOption,
) *ResilientCaller[Req, Resp] {
	config := buildCallConfig(opts)

	breakerOpts := append([]BreakerOption{
		WithBreakerName(config.Endpoint),
		WithBreakerLogger(config.Logger),
		WithBreakerClock(config.Clock),
	}, config.BreakerOptions...)

	return newCaller(transport, NewCircuitBreaker[Resp](breakerOpts...), config)
}

// NewResilientCallerWithBreaker creates a caller that shares an existing
// circuit breaker, typically one obtained from a Registry.
func NewResilientCallerWithBreaker[Req, Resp any](
	transport Transport[Req, Resp],
	breaker *CircuitBreaker[Resp],
	opts ...CallOption,
) *ResilientCaller[Req, Resp] {
	return newCaller(transport, breaker, buildCallConfig(opts))
}

func buildCallConfig(opts []CallOption) *CallConfig {
	config := DefaultCallConfig()
	for _, opt := range opts {
		opt(config)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Classifier == nil {
		config.Classifier = DefaultErrorClassifier()
	}
	if config.Clock == nil {
		config.Clock = systemClock{}
	}
	return config
}

func newCaller[Req, Resp any](
	transport Transport[Req, Resp],
	breaker *CircuitBreaker[Resp],
	config *CallConfig,
) *ResilientCaller[Req, Resp] {
	limiter := config.Limiter
	if limiter == nil {
		if config.MinInterAttemptInterval > 0 {
			limiter = rate.NewLimiter(rate.Every(config.MinInterAttemptInterval), 1)
		} else {
			limiter = rate.NewLimiter(rate.Inf, 1)
		}
	}

	return &ResilientCaller[Req, Resp]{
		transport:  transport,
		breaker:    breaker,
		backoff:    NewExponentialBackoff(config.Backoff),
		classifier: config.Classifier,
		limiter:    limiter,
		config:     config,
		logger:     config.Logger,
		clock:      config.Clock,
		stats:      &callStats{},
	}
}

// Call performs one logical call with full resilience: correlation id,
// inter-attempt rate limiting, per-attempt deadline, classification-driven
// retries with backoff, all guarded by the circuit breaker.
//
// The returned error is a *CircuitOpenError or *ProbeLimitError when the
// breaker rejected the call, or a *CallError enriched with correlation id,
// endpoint and attempt count once the retry budget is spent or a non-retryable
// failure occurs.
func (c *ResilientCaller[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	var zero Resp

	if c.config.MaxAttempts <= 0 {
		return zero, errors.New("max attempts must be positive")
	}

	// Check if parent context is already done before attempting any requests.
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	default:
	}

	rc := &RetryContext{
		CorrelationID: newCorrelationID(),
		Endpoint:      c.config.Endpoint,
		MaxAttempts:   c.config.MaxAttempts,
		StartTime:     c.clock.Now(),
	}
	ctx = ContextWithCorrelationID(ctx, rc.CorrelationID)
	logger := c.logger.With(
		"correlation_id", rc.CorrelationID,
		"endpoint", rc.Endpoint)

	c.stats.mu.Lock()
	c.stats.totalCalls++
	c.stats.mu.Unlock()

	resp, err := c.breaker.Execute(func() (Resp, error) {
		return c.attemptLoop(ctx, logger, rc, req)
	})
	if err != nil {
		c.stats.mu.Lock()
		c.stats.totalFailures++
		c.stats.lastError = err
		c.stats.mu.Unlock()

		var openErr *CircuitOpenError
		var probeErr *ProbeLimitError
		if errors.As(err, &openErr) || errors.As(err, &probeErr) {
			logger.Warn("request rejected by circuit breaker", "error", err)
			return zero, err
		}

		logger.Warn("call failed",
			"attempts", rc.Attempt+1,
			"kind", rc.entry.Kind.String(),
			"error", err)
		return zero, &CallError{
			CorrelationID: rc.CorrelationID,
			Endpoint:      rc.Endpoint,
			Attempts:      rc.Attempt + 1,
			Entry:         rc.entry,
			Err:           err,
		}
	}

	c.stats.mu.Lock()
	c.stats.totalSuccesses++
	c.stats.mu.Unlock()

	return resp, nil
}

// attemptLoop is the bounded retry loop executed as the breaker's single
// operation. Attempts are strictly sequential within one call.
func (c *ResilientCaller[Req, Resp]) attemptLoop(
	ctx context.Context,
	logger *slog.Logger,
	rc *RetryContext,
	req Req,
) (Resp, error) {
	var resp Resp

	// retry.Do counts the initial attempt, so the retry budget is one less.
	maxRetries := c.config.MaxAttempts - 1
	if maxRetries > 1000 {
		maxRetries = 1000
	}

	first := true
	backoff := retry.WithMaxRetries(uint64(maxRetries), c.backoff.RetryBackoff()) // #nosec G115 - bounds checked above

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if first {
			first = false
		} else {
			rc.Attempt++
		}

		// Process-wide spacing between outbound attempts. The limiter is
		// shared by every concurrent call through this caller (and wider,
		// when injected via WithAttemptLimiter).
		if err := c.limiter.Wait(ctx); err != nil {
			rc.LastError = err
			rc.entry = TaxonomyEntry{Kind: KindTimeout, Retryable: false}
			return err
		}

		attemptCtx := ctx
		cancel := func() {}
		if c.config.PerAttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, c.config.PerAttemptTimeout)
		}

		start := c.clock.Now()
		r, err := c.transport.Execute(attemptCtx, req)
		cancel()
		c.recordAttempt(c.clock.Now().Sub(start), rc.Attempt > 0)

		if err == nil {
			if rc.Attempt > 0 {
				logger.Info("request succeeded after retry", "attempts", rc.Attempt+1)
			}
			resp = r
			return nil
		}

		rc.LastError = err

		// A cancelled top-level call aborts the loop; the failure still
		// reaches the breaker but is never retried.
		if ctx.Err() != nil {
			rc.entry = TaxonomyEntry{Kind: KindTimeout, Retryable: false}
			return err
		}

		entry := c.classifier.Classify(err)
		rc.entry = entry

		if !entry.Retryable {
			logger.Debug("non-retryable error, giving up",
				"kind", entry.Kind.String(),
				"attempt", rc.Attempt+1,
				"error", err)
			return err
		}

		logger.Debug("retrying request after backoff",
			"kind", entry.Kind.String(),
			"attempt", rc.Attempt+1,
			"error", err)
		return retry.RetryableError(err)
	})

	return resp, err
}

func (c *ResilientCaller[Req, Resp]) recordAttempt(latency time.Duration, isRetry bool) {
	c.stats.mu.Lock()
	defer c.stats.mu.Unlock()

	c.stats.totalAttempts++
	if isRetry {
		c.stats.totalRetries++
	}
	c.stats.totalLatency += latency
	c.stats.lastAttemptTime = time.Now()
}

// Breaker exposes the caller's circuit breaker for administrative operations
// (ForceState, Reset) and metrics collection.
func (c *ResilientCaller[Req, Resp]) Breaker() *CircuitBreaker[Resp] {
	return c.breaker
}

// Endpoint returns the endpoint label the caller was configured with.
func (c *ResilientCaller[Req, Resp]) Endpoint() string {
	return c.config.Endpoint
}

// CallerStats holds aggregate statistics about calls made through the caller.
type CallerStats struct {
	// TotalCalls is the number of top-level calls started.
	TotalCalls int64

	// TotalAttempts is the number of transport invocations, including retries.
	TotalAttempts int64

	// TotalRetries is the number of attempts after the first within a call.
	TotalRetries int64

	// TotalSuccesses is the number of calls that ultimately succeeded.
	TotalSuccesses int64

	// TotalFailures is the number of calls that ultimately failed,
	// including breaker rejections.
	TotalFailures int64

	// AverageLatency is the mean per-attempt transport latency.
	AverageLatency time.Duration

	// LastAttemptTime is the time of the most recent attempt.
	LastAttemptTime time.Time

	// LastError is the most recent call failure, if any.
	LastError error
}

// Stats returns a snapshot of the caller's statistics. Thread-safe.
func (c *ResilientCaller[Req, Resp]) Stats() CallerStats {
	c.stats.mu.RLock()
	defer c.stats.mu.RUnlock()

	avg := time.Duration(0)
	if c.stats.totalAttempts > 0 {
		avg = c.stats.totalLatency / time.Duration(c.stats.totalAttempts)
	}

	return CallerStats{
		TotalCalls:      c.stats.totalCalls,
		TotalAttempts:   c.stats.totalAttempts,
		TotalRetries:    c.stats.totalRetries,
		TotalSuccesses:  c.stats.totalSuccesses,
		TotalFailures:   c.stats.totalFailures,
		AverageLatency:  avg,
		LastAttemptTime: c.stats.lastAttemptTime,
		LastError:       c.stats.lastError,
	}
}
