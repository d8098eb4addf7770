package scrape

import (
	"sync"
	"time"
)

// Circuit breaker defaults. Three consecutive rate-limit signals open the
// breaker; it stays open for the cooldown window measured from the last
// rate-limit event.
const (
	DefaultBreakerThreshold = 3
	DefaultBreakerCooldown  = 60 * time.Second
)

// CircuitBreaker fails fast once the site starts rate limiting us. Getting
// blocked outright kills all future scraping, so after a few consecutive
// rate-limit signals every attempt is short-circuited until the cooldown
// elapses. The open→closed transition happens lazily on the next query,
// there is no timer.
type CircuitBreaker struct {
	mu                    sync.Mutex
	threshold             int
	cooldown              time.Duration
	consecutiveRateLimits int
	lastRateLimitAt       time.Time
	clock                 Clock
}

// NewCircuitBreaker builds a breaker with the given threshold and cooldown.
// Zero values fall back to the defaults.
func NewCircuitBreaker(threshold int, cooldown time.Duration, clock Clock) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultBreakerThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultBreakerCooldown
	}
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		clock:     clock,
	}
}

// Open reports whether attempts should be short-circuited. Crossing the
// cooldown boundary closes the breaker and resets the counter.
func (b *CircuitBreaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consecutiveRateLimits < b.threshold {
		return false
	}
	if b.clock.Now().Sub(b.lastRateLimitAt) >= b.cooldown {
		b.consecutiveRateLimits = 0
		b.lastRateLimitAt = time.Time{}
		return false
	}
	return true
}

// RecordRateLimit registers one rate-limit signal.
func (b *CircuitBreaker) RecordRateLimit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveRateLimits++
	b.lastRateLimitAt = b.clock.Now()
}

// RecordSuccess resets the consecutive counter immediately. A single
// success anywhere means the site is talking to us again.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveRateLimits = 0
}

// ConsecutiveRateLimits returns the current counter, for metrics.
func (b *CircuitBreaker) ConsecutiveRateLimits() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveRateLimits
}
