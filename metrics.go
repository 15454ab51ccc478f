package resilience

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSource is anything that exposes circuit metrics under a name.
// Every CircuitBreaker satisfies it regardless of its type parameter, which
// lets one collector scrape breakers of different response types.
type MetricsSource interface {
	Name() string
	Metrics() CircuitMetrics
}

// BreakerCollector exports circuit breaker metrics to Prometheus. Register it
// once and add sources as breakers are created:
//
//	collector := resilience.NewBreakerCollector(registry.Sources()...)
//	prometheus.MustRegister(collector)
type BreakerCollector struct {
	mu      sync.RWMutex
	sources []MetricsSource

	stateDesc         *prometheus.Desc
	failureCountDesc  *prometheus.Desc
	successCountDesc  *prometheus.Desc
	totalRequestsDesc *prometheus.Desc
	totalFailuresDesc *prometheus.Desc
	successRateDesc   *prometheus.Desc
	lastChangeDesc    *prometheus.Desc
}

// NewBreakerCollector creates a collector over the given sources.
func NewBreakerCollector(sources ...MetricsSource) *BreakerCollector {
	labels := []string{"breaker"}
	return &BreakerCollector{
		sources: sources,
		stateDesc: prometheus.NewDesc(
			"circuit_breaker_state",
			"Current breaker state (0=closed, 1=open, 2=half-open)",
			labels, nil),
		failureCountDesc: prometheus.NewDesc(
			"circuit_breaker_failure_count",
			"Failures since the breaker last closed",
			labels, nil),
		successCountDesc: prometheus.NewDesc(
			"circuit_breaker_success_count",
			"Successes in the current counting window",
			labels, nil),
		totalRequestsDesc: prometheus.NewDesc(
			"circuit_breaker_requests_total",
			"Lifetime requests observed by the breaker",
			labels, nil),
		totalFailuresDesc: prometheus.NewDesc(
			"circuit_breaker_failures_total",
			"Lifetime failures observed by the breaker",
			labels, nil),
		successRateDesc: prometheus.NewDesc(
			"circuit_breaker_success_rate",
			"Fraction of observed requests that succeeded",
			labels, nil),
		lastChangeDesc: prometheus.NewDesc(
			"circuit_breaker_last_state_change_timestamp_seconds",
			"Unix time of the breaker's last state change",
			labels, nil),
	}
}

// Add registers an additional metrics source with the collector.
func (c *BreakerCollector) Add(source MetricsSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = append(c.sources, source)
}

// Describe implements prometheus.Collector.
func (c *BreakerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.stateDesc
	ch <- c.failureCountDesc
	ch <- c.successCountDesc
	ch <- c.totalRequestsDesc
	ch <- c.totalFailuresDesc
	ch <- c.successRateDesc
	ch <- c.lastChangeDesc
}

// Collect implements prometheus.Collector.
func (c *BreakerCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	sources := make([]MetricsSource, len(c.sources))
	copy(sources, c.sources)
	c.mu.RUnlock()

	for _, src := range sources {
		name := src.Name()
		m := src.Metrics()

		ch <- prometheus.MustNewConstMetric(c.stateDesc, prometheus.GaugeValue, float64(m.State), name)
		ch <- prometheus.MustNewConstMetric(c.failureCountDesc, prometheus.GaugeValue, float64(m.FailureCount), name)
		ch <- prometheus.MustNewConstMetric(c.successCountDesc, prometheus.GaugeValue, float64(m.SuccessCount), name)
		ch <- prometheus.MustNewConstMetric(c.totalRequestsDesc, prometheus.CounterValue, float64(m.TotalRequests), name)
		ch <- prometheus.MustNewConstMetric(c.totalFailuresDesc, prometheus.CounterValue, float64(m.TotalFailures), name)
		ch <- prometheus.MustNewConstMetric(c.successRateDesc, prometheus.GaugeValue, m.SuccessRate(), name)
		if !m.LastStateChange.IsZero() {
			ch <- prometheus.MustNewConstMetric(c.lastChangeDesc, prometheus.GaugeValue, float64(m.LastStateChange.Unix()), name)
		}
	}
}

// CallerSource is anything that exposes caller statistics under an endpoint
// label. Every ResilientCaller satisfies it regardless of its type parameters.
type CallerSource interface {
	Endpoint() string
	Stats() CallerStats
}

// CallerCollector exports per-endpoint call, attempt and latency aggregates to
// Prometheus, alongside the breaker series from a BreakerCollector.
type CallerCollector struct {
	mu      sync.RWMutex
	sources []CallerSource

	callsDesc      *prometheus.Desc
	attemptsDesc   *prometheus.Desc
	retriesDesc    *prometheus.Desc
	successesDesc  *prometheus.Desc
	failuresDesc   *prometheus.Desc
	avgLatencyDesc *prometheus.Desc
}

// NewCallerCollector creates a collector over the given callers.
func NewCallerCollector(sources ...CallerSource) *CallerCollector {
	labels := []string{"endpoint"}
	return &CallerCollector{
		sources: sources,
		callsDesc: prometheus.NewDesc(
			"resilient_calls_total",
			"Top-level calls started",
			labels, nil),
		attemptsDesc: prometheus.NewDesc(
			"resilient_call_attempts_total",
			"Transport invocations, including retries",
			labels, nil),
		retriesDesc: prometheus.NewDesc(
			"resilient_call_retries_total",
			"Attempts after the first within a call",
			labels, nil),
		successesDesc: prometheus.NewDesc(
			"resilient_call_successes_total",
			"Calls that ultimately succeeded",
			labels, nil),
		failuresDesc: prometheus.NewDesc(
			"resilient_call_failures_total",
			"Calls that ultimately failed, including breaker rejections",
			labels, nil),
		avgLatencyDesc: prometheus.NewDesc(
			"resilient_call_attempt_latency_avg_seconds",
			"Mean per-attempt transport latency",
			labels, nil),
	}
}

// Add registers an additional caller with the collector.
func (c *CallerCollector) Add(source CallerSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = append(c.sources, source)
}

// Describe implements prometheus.Collector.
func (c *CallerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.callsDesc
	ch <- c.attemptsDesc
	ch <- c.retriesDesc
	ch <- c.successesDesc
	ch <- c.failuresDesc
	ch <- c.avgLatencyDesc
}

// Collect implements prometheus.Collector.
func (c *CallerCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	sources := make([]CallerSource, len(c.sources))
	copy(sources, c.sources)
	c.mu.RUnlock()

	for _, src := range sources {
		endpoint := src.Endpoint()
		s := src.Stats()

		ch <- prometheus.MustNewConstMetric(c.callsDesc, prometheus.CounterValue, float64(s.TotalCalls), endpoint)
		ch <- prometheus.MustNewConstMetric(c.attemptsDesc, prometheus.CounterValue, float64(s.TotalAttempts), endpoint)
		ch <- prometheus.MustNewConstMetric(c.retriesDesc, prometheus.CounterValue, float64(s.TotalRetries), endpoint)
		ch <- prometheus.MustNewConstMetric(c.successesDesc, prometheus.CounterValue, float64(s.TotalSuccesses), endpoint)
		ch <- prometheus.MustNewConstMetric(c.failuresDesc, prometheus.CounterValue, float64(s.TotalFailures), endpoint)
		ch <- prometheus.MustNewConstMetric(c.avgLatencyDesc, prometheus.GaugeValue, s.AverageLatency.Seconds(), endpoint)
	}
}
