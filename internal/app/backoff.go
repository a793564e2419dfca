package app

import (
	"math/rand"
	"time"
)

// BackoffDelay computes the delay before retry number attempt (1-based):
// exponential doubling from base, capped at max, with symmetric jitter
// (jitter 0.2 = ±20%) to avoid thundering herds on redelivery.
func BackoffDelay(base, max time.Duration, attempt int, jitter float64, rng *rand.Rand) time.Duration {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if max <= 0 {
		max = 15 * time.Second
	}

	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d > max {
			d = max
			break
		}
	}
	if jitter > 0 && rng != nil {
		r := (rng.Float64()*2 - 1) * jitter
		d = time.Duration(float64(d) * (1 + r))
		if d < 0 {
			d = 0
		}
	}
	if d > max {
		d = max
	}
	return d
}
