package resilience_test

import (
	"context"
	"sync"
	"time"
)

type mockTransport struct {
	executeFunc func(ctx context.Context, req string) (string, error)
	mu          sync.Mutex
	callCount   int
}

func (m *mockTransport) Execute(ctx context.Context, req string) (string, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()
	return m.executeFunc(ctx, req)
}

func (m *mockTransport) getCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

func (m *mockTransport) resetCallCount() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
}

// fakeClock drives breaker cooldowns deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
