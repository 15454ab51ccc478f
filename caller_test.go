package resilience_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	resilience "github.com/canopyware/go-resilience"
)

var _ = Describe("ResilientCaller", func() {
	var (
		transport *mockTransport
		ctx       context.Context
	)

	fastBackoff := resilience.BackoffConfig{
		Base:       time.Millisecond,
		Max:        5 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     false,
	}

	newCaller := func(opts ...resilience.CallOption) *resilience.ResilientCaller[string, string] {
		base := []resilience.CallOption{
			resilience.WithEndpoint("orders-api"),
			resilience.WithBackoff(fastBackoff),
			resilience.WithMinInterAttemptInterval(0),
			resilience.WithPerAttemptTimeout(time.Second),
		}
		return resilience.NewResilientCaller[string, string](transport, append(base, opts...)...)
	}

	BeforeEach(func() {
		transport = &mockTransport{
			executeFunc: func(ctx context.Context, req string) (string, error) {
				return "success", nil
			},
		}
		ctx = context.Background()
	})

	Describe("successful calls", func() {
		It("returns the transport response on the first attempt", func() {
			caller := newCaller()

			resp, err := caller.Call(ctx, "payload")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp).To(Equal("success"))
			Expect(transport.getCallCount()).To(Equal(1))
		})

		It("attaches a correlation id visible to the transport", func() {
			var seen string
			transport.executeFunc = func(ctx context.Context, req string) (string, error) {
				seen = resilience.CorrelationIDFromContext(ctx)
				return "success", nil
			}
			caller := newCaller()

			_, err := caller.Call(ctx, "payload")
			Expect(err).NotTo(HaveOccurred())
			Expect(seen).NotTo(BeEmpty())
		})

		It("uses a fresh correlation id per top-level call", func() {
			ids := map[string]bool{}
			transport.executeFunc = func(ctx context.Context, req string) (string, error) {
				ids[resilience.CorrelationIDFromContext(ctx)] = true
				return "success", nil
			}
			caller := newCaller()

			_, _ = caller.Call(ctx, "a")
			_, _ = caller.Call(ctx, "b")
			Expect(ids).To(HaveLen(2))
		})
	})

	Describe("retry behavior", func() {
		It("retries retryable failures until success", func() {
			attempts := 0
			transport.executeFunc = func(ctx context.Context, req string) (string, error) {
				attempts++
				if attempts < 3 {
					return "", &resilience.RemoteError{Status: 503, Message: "unavailable"}
				}
				return "success", nil
			}
			caller := newCaller(resilience.WithCallMaxAttempts(5))

			resp, err := caller.Call(ctx, "payload")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp).To(Equal("success"))
			Expect(transport.getCallCount()).To(Equal(3))

			stats := caller.Stats()
			Expect(stats.TotalCalls).To(Equal(int64(1)))
			Expect(stats.TotalAttempts).To(Equal(int64(3)))
			Expect(stats.TotalRetries).To(Equal(int64(2)))
			Expect(stats.TotalSuccesses).To(Equal(int64(1)))
		})

		It("shares one correlation id across all attempts of a call", func() {
			ids := map[string]bool{}
			transport.executeFunc = func(ctx context.Context, req string) (string, error) {
				ids[resilience.CorrelationIDFromContext(ctx)] = true
				return "", &resilience.RemoteError{Status: 500, Message: "boom"}
			}
			caller := newCaller(resilience.WithCallMaxAttempts(3))

			_, err := caller.Call(ctx, "payload")
			Expect(err).To(HaveOccurred())
			Expect(transport.getCallCount()).To(Equal(3))
			Expect(ids).To(HaveLen(1))
		})

		It("never retries a terminal client error", func() {
			transport.executeFunc = func(ctx context.Context, req string) (string, error) {
				return "", &resilience.RemoteError{Status: 400, Message: "malformed"}
			}
			caller := newCaller(resilience.WithCallMaxAttempts(5))

			_, err := caller.Call(ctx, "payload")
			Expect(err).To(HaveOccurred())
			Expect(transport.getCallCount()).To(Equal(1))

			var callErr *resilience.CallError
			Expect(errors.As(err, &callErr)).To(BeTrue())
			Expect(callErr.Attempts).To(Equal(1))
			Expect(callErr.Entry.Kind).To(Equal(resilience.KindClientError))
		})

		It("enriches the terminal error after the budget is spent", func() {
			transport.executeFunc = func(ctx context.Context, req string) (string, error) {
				return "", &resilience.RemoteError{Status: 503, Message: "unavailable"}
			}
			caller := newCaller(resilience.WithCallMaxAttempts(3))

			_, err := caller.Call(ctx, "payload")
			Expect(transport.getCallCount()).To(Equal(3))

			var callErr *resilience.CallError
			Expect(errors.As(err, &callErr)).To(BeTrue())
			Expect(callErr.CorrelationID).NotTo(BeEmpty())
			Expect(callErr.Endpoint).To(Equal("orders-api"))
			Expect(callErr.Attempts).To(Equal(3))
			Expect(callErr.Entry.Kind).To(Equal(resilience.KindServerError))

			var remoteErr *resilience.RemoteError
			Expect(errors.As(err, &remoteErr)).To(BeTrue())
		})

		It("rejects a non-positive attempt budget", func() {
			caller := newCaller(resilience.WithCallMaxAttempts(0))

			_, err := caller.Call(ctx, "payload")
			Expect(err).To(HaveOccurred())
			Expect(transport.getCallCount()).To(Equal(0))
		})
	})

	Describe("per-attempt deadlines", func() {
		It("classifies an attempt deadline expiry as a retryable timeout", func() {
			transport.executeFunc = func(ctx context.Context, req string) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			}
			caller := newCaller(
				resilience.WithCallMaxAttempts(2),
				resilience.WithPerAttemptTimeout(20*time.Millisecond),
			)

			_, err := caller.Call(ctx, "payload")
			Expect(err).To(HaveOccurred())
			Expect(transport.getCallCount()).To(Equal(2))

			var callErr *resilience.CallError
			Expect(errors.As(err, &callErr)).To(BeTrue())
			Expect(callErr.Entry.Kind).To(Equal(resilience.KindTimeout))
		})
	})

	Describe("cancellation", func() {
		It("refuses to start when the context is already done", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			caller := newCaller()

			_, err := caller.Call(cancelled, "payload")
			Expect(err).To(MatchError(context.Canceled))
			Expect(transport.getCallCount()).To(Equal(0))
		})

		It("aborts the in-flight attempt and never loops", func() {
			callCtx, cancel := context.WithCancel(ctx)
			transport.executeFunc = func(ctx context.Context, req string) (string, error) {
				cancel()
				<-ctx.Done()
				return "", ctx.Err()
			}
			caller := newCaller(resilience.WithCallMaxAttempts(5))

			_, err := caller.Call(callCtx, "payload")
			Expect(err).To(HaveOccurred())
			Expect(transport.getCallCount()).To(Equal(1))
		})

		It("counts a cancelled call as a breaker failure", func() {
			callCtx, cancel := context.WithCancel(ctx)
			transport.executeFunc = func(ctx context.Context, req string) (string, error) {
				cancel()
				<-ctx.Done()
				return "", ctx.Err()
			}
			caller := newCaller()

			_, _ = caller.Call(callCtx, "payload")
			m := caller.Breaker().Metrics()
			Expect(m.TotalFailures).To(Equal(uint64(1)))
			Expect(m.SuccessCount).To(Equal(0))
		})
	})

	Describe("inter-attempt spacing", func() {
		It("spaces consecutive outbound attempts by the configured interval", func() {
			transport.executeFunc = func(ctx context.Context, req string) (string, error) {
				return "", &resilience.RemoteError{Status: 503, Message: "unavailable"}
			}
			caller := newCaller(
				resilience.WithCallMaxAttempts(3),
				resilience.WithMinInterAttemptInterval(30*time.Millisecond),
			)

			start := time.Now()
			_, err := caller.Call(ctx, "payload")
			Expect(err).To(HaveOccurred())
			Expect(transport.getCallCount()).To(Equal(3))
			Expect(time.Since(start)).To(BeNumerically(">=", 55*time.Millisecond))
		})
	})

	Describe("circuit breaker integration", func() {
		It("records one breaker verdict per logical call despite internal retries", func() {
			transport.executeFunc = func(ctx context.Context, req string) (string, error) {
				return "", &resilience.RemoteError{Status: 503, Message: "unavailable"}
			}
			caller := newCaller(
				resilience.WithCallMaxAttempts(3),
				resilience.WithCallBreakerOptions(resilience.WithFailureThreshold(5)),
			)

			_, _ = caller.Call(ctx, "payload")

			m := caller.Breaker().Metrics()
			Expect(m.TotalRequests).To(Equal(uint64(1)))
			Expect(m.TotalFailures).To(Equal(uint64(1)))
			Expect(transport.getCallCount()).To(Equal(3))
		})

		It("fails fast without the transport once the breaker opens", func() {
			transport.executeFunc = func(ctx context.Context, req string) (string, error) {
				return "", &resilience.RemoteError{Status: 503, Message: "unavailable"}
			}
			caller := newCaller(
				resilience.WithCallMaxAttempts(1),
				resilience.WithCallBreakerOptions(
					resilience.WithFailureThreshold(2),
					resilience.WithResetTimeout(time.Hour),
				),
			)

			_, _ = caller.Call(ctx, "payload")
			_, _ = caller.Call(ctx, "payload")
			Expect(caller.Breaker().State()).To(Equal(resilience.StateOpen))

			transport.resetCallCount()
			_, err := caller.Call(ctx, "payload")

			var openErr *resilience.CircuitOpenError
			Expect(errors.As(err, &openErr)).To(BeTrue())
			Expect(transport.getCallCount()).To(Equal(0))
		})

		It("shares a breaker between callers when injected", func() {
			breaker := resilience.NewCircuitBreaker[string](
				resilience.WithBreakerName("shared"),
				resilience.WithFailureThreshold(1),
				resilience.WithResetTimeout(time.Hour),
			)
			transport.executeFunc = func(ctx context.Context, req string) (string, error) {
				return "", &resilience.RemoteError{Status: 500, Message: "boom"}
			}
			first := resilience.NewResilientCallerWithBreaker[string, string](transport, breaker,
				resilience.WithCallMaxAttempts(1),
				resilience.WithBackoff(fastBackoff),
				resilience.WithMinInterAttemptInterval(0),
			)
			second := resilience.NewResilientCallerWithBreaker[string, string](transport, breaker,
				resilience.WithCallMaxAttempts(1),
				resilience.WithBackoff(fastBackoff),
				resilience.WithMinInterAttemptInterval(0),
			)

			_, _ = first.Call(ctx, "payload")
			Expect(breaker.State()).To(Equal(resilience.StateOpen))

			_, err := second.Call(ctx, "payload")
			var openErr *resilience.CircuitOpenError
			Expect(errors.As(err, &openErr)).To(BeTrue())
		})
	})
})
