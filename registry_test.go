package resilience_test

import (
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	resilience "github.com/canopyware/go-resilience"
)

var _ = Describe("Registry", func() {
	var registry *resilience.Registry[string]

	BeforeEach(func() {
		registry = resilience.NewRegistry[string](
			resilience.WithFailureThreshold(2),
		)
	})

	It("returns the same breaker for the same endpoint", func() {
		first := registry.Get("orders")
		second := registry.Get("orders")
		Expect(first).To(BeIdenticalTo(second))
	})

	It("keeps breakers independent across endpoints", func() {
		orders := registry.Get("orders")
		billing := registry.Get("billing")
		Expect(orders).NotTo(BeIdenticalTo(billing))

		_, _ = orders.Execute(func() (string, error) { return "", errors.New("boom") })
		_, _ = orders.Execute(func() (string, error) { return "", errors.New("boom") })

		Expect(orders.State()).To(Equal(resilience.StateOpen))
		Expect(billing.State()).To(Equal(resilience.StateClosed))
	})

	It("names breakers after their endpoint", func() {
		Expect(registry.Get("orders").Name()).To(Equal("orders"))
	})

	It("is safe for concurrent first use", func() {
		var wg sync.WaitGroup
		results := make([]*resilience.CircuitBreaker[string], 50)
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = registry.Get("orders")
			}(i)
		}
		wg.Wait()

		for _, cb := range results {
			Expect(cb).To(BeIdenticalTo(results[0]))
		}
	})

	It("reports per-endpoint states", func() {
		orders := registry.Get("orders")
		registry.Get("billing")

		_, _ = orders.Execute(func() (string, error) { return "", errors.New("boom") })
		_, _ = orders.Execute(func() (string, error) { return "", errors.New("boom") })

		stats := registry.Stats()
		Expect(stats).To(HaveLen(2))
		Expect(stats["orders"]).To(Equal(resilience.StateOpen))
		Expect(stats["billing"]).To(Equal(resilience.StateClosed))
	})

	It("resets every breaker", func() {
		orders := registry.Get("orders")
		_, _ = orders.Execute(func() (string, error) { return "", errors.New("boom") })
		_, _ = orders.Execute(func() (string, error) { return "", errors.New("boom") })
		Expect(orders.State()).To(Equal(resilience.StateOpen))

		registry.ResetAll()
		Expect(orders.State()).To(Equal(resilience.StateClosed))
		Expect(orders.Metrics().TotalRequests).To(Equal(uint64(0)))
	})

	It("exposes registered breakers as metrics sources", func() {
		registry.Get("orders")
		registry.Get("billing")
		Expect(registry.Sources()).To(HaveLen(2))
	})
})
