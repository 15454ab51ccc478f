package resilience

import "time"

// Clock supplies the current time. The circuit breaker and caller take an
// injected Clock so state transitions and deadlines can be driven
// deterministically in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
