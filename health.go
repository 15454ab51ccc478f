package resilience

// HealthStatus represents the health of a circuit breaker.
// It provides a strongly-typed alternative to map[string]interface{} for health checks.
type HealthStatus struct {
	// Healthy indicates whether the breaker is in a usable state.
	// True for closed and half-open states, false for open state.
	Healthy bool `json:"healthy"`

	// Status is a short string description of the state ("closed", "half-open", "open").
	Status string `json:"status"`

	// FailureCount is the number of failures since the breaker last closed.
	FailureCount int `json:"failure_count"`

	// SuccessCount is the current windowed success counter.
	SuccessCount int `json:"success_count"`

	// TotalRequests is the lifetime number of requests observed.
	TotalRequests uint64 `json:"total_requests"`

	// TotalFailures is the lifetime number of failures observed.
	TotalFailures uint64 `json:"total_failures"`

	// SuccessRate is the fraction of observed requests that succeeded.
	SuccessRate float64 `json:"success_rate"`
}

// GetHealth returns the health status of the circuit breaker.
func (cb *CircuitBreaker[T]) GetHealth() HealthStatus {
	m := cb.Metrics()

	var healthy bool
	switch m.State {
	case StateClosed:
		healthy = true
	case StateHalfOpen:
		healthy = true // Degraded but operational
	case StateOpen:
		healthy = false
	}

	return HealthStatus{
		Healthy:       healthy,
		Status:        m.State.String(),
		FailureCount:  m.FailureCount,
		SuccessCount:  m.SuccessCount,
		TotalRequests: m.TotalRequests,
		TotalFailures: m.TotalFailures,
		SuccessRate:   m.SuccessRate(),
	}
}
