package resilience

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CorrelationHeader is the conventional header name transports use to carry
// the correlation id to the remote endpoint.
const CorrelationHeader = "X-Correlation-ID"

type correlationIDKey struct{}

// ContextWithCorrelationID returns a context carrying the given correlation id.
// The caller attaches one automatically at the start of every top-level call.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationIDFromContext extracts the correlation id attached by the caller,
// or "" when none is present. Transports use this to stamp outbound requests.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}

func newCorrelationID() string {
	return uuid.NewString()
}

// RetryContext is the per-call retry bookkeeping. One is created for each
// top-level call and threaded through every attempt; it is never shared
// between concurrent calls.
type RetryContext struct {
	// CorrelationID ties all attempts of one logical call together.
	CorrelationID string

	// Endpoint labels the remote endpoint being called.
	Endpoint string

	// Attempt is the 0-indexed number of the current attempt.
	Attempt int

	// MaxAttempts bounds the total number of attempts, including the first.
	MaxAttempts int

	// LastError is the most recent attempt failure.
	LastError error

	// StartTime is when the top-level call began.
	StartTime time.Time

	entry TaxonomyEntry
}
