package docsync

import (
	rand "math/rand/v2"
	"sync"
	"time"
)

// jitter computes retry delays with decorrelated jitter and a cap.
//
// Given the previous delay, the next delay is drawn uniformly from
// [base, prev*multiplier) and clamped to max. The first delay is base.
type jitter struct {
	base time.Duration
	mult float64
	max  time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// newJitter creates a jitter source.
//
// A zero seed uses the package-level PRNG; a non-zero seed gives a
// deterministic sequence for tests.
func newJitter(base time.Duration, mult float64, maxDelay time.Duration, seed int64) *jitter {
	if base <= 0 {
		base = 20 * time.Millisecond
	}
	if mult < 1.0 {
		mult = 1.0
	}
	j := &jitter{base: base, mult: mult, max: maxDelay}
	if seed != 0 {
		s1 := uint64(seed) //nolint:gosec // seed bits reinterpretation

		j.rng = rand.New(rand.NewPCG(s1, s1^0x9e3779b97f4a7c15)) //nolint:gosec // non-crypto backoff jitter
	}

	return j
}

func (j *jitter) next(prev time.Duration) time.Duration {
	if j.max > 0 && j.max < j.base {
		return j.max
	}
	if prev <= 0 {
		return j.base
	}

	span := time.Duration(float64(prev)*j.mult) - j.base
	if span <= 0 {
		span = j.base
	}

	var n int64
	if j.rng != nil {
		j.mu.Lock()
		n = j.rng.Int64N(int64(span))
		j.mu.Unlock()
	} else {
		n = rand.Int64N(int64(span)) //nolint:gosec // non-crypto backoff jitter
	}

	d := j.base + time.Duration(n)
	if j.max > 0 && d > j.max {
		return j.max
	}

	return d
}
