package controller

import (
	"math/rand/v2"
	"time"
)

// Backoff computes retry delays: base * 2^(attempt-1), capped at Max, then
// spread by +/- Jitter.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
	// Rand returns a value in [0, 1); nil uses math/rand.
	Rand func() float64
}

// Delay returns the wait before the attempt following the given number of
// completed attempts.
func (b Backoff) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := b.Base
	for i := 1; i < attempts && delay < b.Max; i++ {
		delay *= 2
	}
	if delay > b.Max {
		delay = b.Max
	}

	if b.Jitter > 0 {
		r := rand.Float64
		if b.Rand != nil {
			r = b.Rand
		}
		spread := float64(delay) * b.Jitter * (2*r() - 1)
		delay += time.Duration(spread)
	}
	if delay > b.Max {
		delay = b.Max
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// RetryDelay honours a rate-limit hint by waiting at least that long.
func (b Backoff) RetryDelay(attempts int, hint time.Duration) time.Duration {
	delay := b.Delay(attempts)
	if hint > delay {
		return hint
	}
	return delay
}
