package resilience

import "sync"

// Registry hands out one circuit breaker per endpoint so a single process can
// guard many remote endpoints with shared configuration. Breakers are created
// lazily on first use.
type Registry[T any] struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker[T]
	opts     []BreakerOption
}

// NewRegistry creates a registry whose breakers share the given options. The
// endpoint name always overrides any configured breaker name.
func NewRegistry[T any](opts ...BreakerOption) *Registry[T] {
	return &Registry[T]{
		breakers: make(map[string]*CircuitBreaker[T]),
		opts:     opts,
	}
}

// Get returns the breaker for the endpoint, creating it on first use.
func (r *Registry[T]) Get(endpoint string) *CircuitBreaker[T] {
	r.mu.RLock()
	cb, exists := r.breakers[endpoint]
	r.mu.RUnlock()

	if exists {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check: another goroutine may have created it.
	if cb, exists = r.breakers[endpoint]; exists {
		return cb
	}

	opts := append(append([]BreakerOption{}, r.opts...), WithBreakerName(endpoint))
	cb = NewCircuitBreaker[T](opts...)
	r.breakers[endpoint] = cb
	return cb
}

// ResetAll resets every registered breaker to CLOSED with zeroed counters.
func (r *Registry[T]) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cb := range r.breakers {
		cb.Reset()
	}
}

// Stats returns the current state of every registered breaker by endpoint.
func (r *Registry[T]) Stats() map[string]CircuitState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]CircuitState, len(r.breakers))
	for endpoint, cb := range r.breakers {
		stats[endpoint] = cb.State()
	}
	return stats
}

// Sources returns the registered breakers as metrics sources, suitable for
// feeding a BreakerCollector.
func (r *Registry[T]) Sources() []MetricsSource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]MetricsSource, 0, len(r.breakers))
	for _, cb := range r.breakers {
		sources = append(sources, cb)
	}
	return sources
}
