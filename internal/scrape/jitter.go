package scrape

import (
	"math/rand"
	"time"
)

// Jitter produces uniformly distributed durations inside [min, max]. All
// randomized waits in the pipeline go through one Jitter instance so tests
// can seed it deterministically.
type Jitter struct {
	rng *rand.Rand
}

// NewJitter creates a Jitter seeded from seed. Pass a fixed seed in tests.
func NewJitter(seed int64) *Jitter {
	return &Jitter{rng: rand.New(rand.NewSource(seed))}
}

// Between returns a random duration in [min, max]. Degenerate ranges
// collapse to min.
func (j *Jitter) Between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	span := int64(max - min)
	return min + time.Duration(j.rng.Int63n(span+1))
}
