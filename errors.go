package resilience

import (
	"fmt"
	"time"
)

// ErrorKind is the closed taxonomy of failure categories produced by the
// classifier. Downstream logic branches on the kind instead of re-inspecting
// raw error internals.
type ErrorKind int

const (
	// KindNetwork covers connection, DNS and other transport-level failures.
	KindNetwork ErrorKind = iota

	// KindTimeout covers per-attempt deadline expiry and transport aborts.
	KindTimeout

	// KindRateLimited covers explicit 429 responses from the remote.
	KindRateLimited

	// KindClientError covers 4xx responses other than 429: malformed requests
	// or business-rule rejections, never transient.
	KindClientError

	// KindServerError covers 5xx responses.
	KindServerError

	// KindTerminal covers anything unclassifiable.
	KindTerminal
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindClientError:
		return "client_error"
	case KindServerError:
		return "server_error"
	case KindTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// TaxonomyEntry is the classification verdict for a single failure: its kind
// and whether the retry loop may attempt it again.
type TaxonomyEntry struct {
	Kind      ErrorKind
	Retryable bool
}

// RemoteError is a structured error payload returned by the remote endpoint.
// When Status is set, classification uses it directly; otherwise the
// classifier falls back to message heuristics.
type RemoteError struct {
	Code    string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote error %s (status %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("remote error (status %d): %s", e.Status, e.Message)
}

// StatusCode returns the HTTP-like status carried by the payload.
// This implements the HTTPError interface.
func (e *RemoteError) StatusCode() int {
	return e.Status
}

// HTTPError represents an error with an associated HTTP status code.
// Many HTTP client libraries provide errors that implement this interface.
type HTTPError interface {
	error
	StatusCode() int
}

// StatusCodeError wraps an error with an HTTP status code.
// Use this when you need to add status code information to an existing error.
type StatusCodeError struct {
	Err  error
	Code int
}

// Error implements the error interface.
func (e *StatusCodeError) Error() string {
	return e.Err.Error()
}

// Unwrap implements error unwrapping for errors.Is and errors.As.
func (e *StatusCodeError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status code.
// This implements the HTTPError interface.
func (e *StatusCodeError) StatusCode() int {
	return e.Code
}

// NewStatusCodeError creates a new StatusCodeError.
// This is useful when wrapping errors from systems that don't provide status codes.
//
// Example:
//
//	err := doRequest()
//	if err != nil {
//	    return resilience.NewStatusCodeError(http.StatusServiceUnavailable, err)
//	}
func NewStatusCodeError(statusCode int, err error) error {
	return &StatusCodeError{
		Code: statusCode,
		Err:  err,
	}
}

// CircuitOpenError is returned when the circuit breaker rejects a call while
// OPEN. The transport is never invoked on this path. It is distinct from every
// transport error so callers can tell "service degraded" from "this specific
// request is invalid".
type CircuitOpenError struct {
	// Breaker names the rejecting breaker.
	Breaker string

	// RetryAfter is the remaining cooldown before a half-open probe is allowed.
	RetryAfter time.Duration

	// Metrics is a snapshot taken at rejection time.
	Metrics CircuitMetrics
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open: failing fast for another %s", e.Breaker, e.RetryAfter)
}

// ProbeLimitError is returned when a HALF_OPEN breaker already has its maximum
// number of probes in flight.
type ProbeLimitError struct {
	Breaker  string
	MaxCalls int
}

// Error implements the error interface.
func (e *ProbeLimitError) Error() string {
	return fmt.Sprintf("circuit breaker %q is half-open: probe limit of %d reached", e.Breaker, e.MaxCalls)
}

// CallError is the terminal error returned by the caller once the retry budget
// is exhausted or a non-retryable failure occurs. It enriches the underlying
// error with the call's correlation id, endpoint and total attempt count.
type CallError struct {
	CorrelationID string
	Endpoint      string
	Attempts      int
	Entry         TaxonomyEntry
	Err           error
}

// Error implements the error interface.
func (e *CallError) Error() string {
	return fmt.Sprintf("call to %s failed after %d attempt(s) [%s, correlation_id=%s]: %v",
		e.Endpoint, e.Attempts, e.Entry.Kind, e.CorrelationID, e.Err)
}

// Unwrap implements error unwrapping for errors.Is and errors.As.
func (e *CallError) Unwrap() error {
	return e.Err
}
