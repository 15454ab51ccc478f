// Package resilience shields callers from a flaky remote-procedure endpoint.
// It combines a circuit breaker, exponential backoff with jitter, error
// classification and a retry orchestrator into a single resilient-call
// operation. Any request/response pair works through Go generics, so the same
// wiring serves HTTP clients, gRPC clients or anything else that can fail
// transiently.
package resilience

import (
	"context"
)

// Transport executes one outbound attempt against the remote endpoint.
// Implementations should honor the context deadline and propagate the
// correlation id found via CorrelationIDFromContext as a request header or
// field, so upstream logs can be joined to client-side retry history.
//
// Example:
//
//	type HTTPTransport struct {
//	    client *http.Client
//	}
//
//	func (t *HTTPTransport) Execute(ctx context.Context, req *http.Request) (*http.Response, error) {
//	    if id := resilience.CorrelationIDFromContext(ctx); id != "" {
//	        req.Header.Set(resilience.CorrelationHeader, id)
//	    }
//	    return t.client.Do(req.WithContext(ctx))
//	}
type Transport[Req, Resp any] interface {
	// Execute performs a single attempt and returns a response or error.
	// The context carries the per-attempt deadline and cancellation signal.
	Execute(ctx context.Context, req Req) (Resp, error)
}
