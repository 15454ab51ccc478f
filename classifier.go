package resilience

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	jperrors "github.com/JohnPlummer/jp-go-errors"
)

// ErrorClassifier maps a failure to a taxonomy entry. Implement this interface
// to customize retry eligibility for your specific error types.
type ErrorClassifier interface {
	// Classify returns the taxonomy entry for the error.
	Classify(err error) TaxonomyEntry
}

// PayloadClassifier is the default classifier. It inspects, in priority order:
// structured status codes carried by the error, timeout/abort signals, and
// transport-level network failures. Anything unclassifiable is Terminal but
// retryable, so unknown failures are retried rather than silently dropped;
// the caller's attempt budget still caps them.
type PayloadClassifier struct{}

// NewPayloadClassifier creates the default classifier.
func NewPayloadClassifier() *PayloadClassifier {
	return &PayloadClassifier{}
}

// Classify implements ErrorClassifier.
func (c *PayloadClassifier) Classify(err error) TaxonomyEntry {
	if err == nil {
		return TaxonomyEntry{Kind: KindTerminal, Retryable: false}
	}

	// A canceled parent context must never loop; retrying with the same
	// context would fail immediately.
	if errors.Is(err, context.Canceled) {
		return TaxonomyEntry{Kind: KindTimeout, Retryable: false}
	}

	if status := extractStatusCode(err); status != 0 {
		switch {
		case status == http.StatusTooManyRequests:
			return TaxonomyEntry{Kind: KindRateLimited, Retryable: true}
		case status >= 500:
			return TaxonomyEntry{Kind: KindServerError, Retryable: true}
		case status >= 400:
			return TaxonomyEntry{Kind: KindClientError, Retryable: false}
		}
	}

	if errors.Is(err, jperrors.ErrRateLimited) {
		return TaxonomyEntry{Kind: KindRateLimited, Retryable: true}
	}

	if isTimeout(err) {
		return TaxonomyEntry{Kind: KindTimeout, Retryable: true}
	}

	if isNetwork(err) {
		return TaxonomyEntry{Kind: KindNetwork, Retryable: true}
	}

	return TaxonomyEntry{Kind: KindTerminal, Retryable: true}
}

// IsRetryable reports whether the classified error may be attempted again.
func (c *PayloadClassifier) IsRetryable(err error) bool {
	return c.Classify(err).Retryable
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if jperrors.IsTimeout(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return containsAny(err.Error(), "timeout", "timed out", "deadline exceeded")
}

func isNetwork(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return containsAny(err.Error(),
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"network is unreachable",
		"dial tcp")
}

func containsAny(msg string, needles ...string) bool {
	msg = strings.ToLower(msg)
	for _, n := range needles {
		if strings.Contains(msg, n) {
			return true
		}
	}
	return false
}

// extractStatusCode attempts to extract an HTTP status code from various error types.
func extractStatusCode(err error) int {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode()
	}

	// jp-go-errors types carry a status code without implementing HTTPError's
	// error embedding directly.
	type httpStatusProvider interface {
		StatusCode() int
	}
	var statusProvider httpStatusProvider
	if errors.As(err, &statusProvider) {
		return statusProvider.StatusCode()
	}

	return 0
}

// DefaultErrorClassifier provides reasonable defaults for most use cases:
// 5xx and 429 are retryable, other 4xx are terminal, timeouts and network
// failures are retryable, and unknown errors retry until the budget runs out.
func DefaultErrorClassifier() ErrorClassifier {
	return NewPayloadClassifier()
}
