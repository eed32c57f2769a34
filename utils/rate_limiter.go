package utils

import (
	"sync"
	"time"
)

// RateLimiter implements a token bucket rate limiter
type RateLimiter struct {
	rate       int           // requests per period
	period     time.Duration // time period
	tokens     int           // current available tokens
	maxTokens  int           // maximum tokens (burst capacity)
	lastRefill time.Time     // last time tokens were refilled
	mutex      sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(rate int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		rate:       rate,
		period:     period,
		tokens:     rate,
		maxTokens:  rate,
		lastRefill: time.Now(),
	}
}

// Allow checks if a request is allowed under the rate limit
func (rl *RateLimiter) Allow() bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()

	timePassed := now.Sub(rl.lastRefill)
	tokensToAdd := int(timePassed.Nanoseconds() * int64(rl.rate) / rl.period.Nanoseconds())

	if tokensToAdd > 0 {
		rl.tokens += tokensToAdd
		if rl.tokens > rl.maxTokens {
			rl.tokens = rl.maxTokens
		}
		rl.lastRefill = now
	}

	if rl.tokens > 0 {
		rl.tokens--
		return true
	}

	return false
}

// KeyedWindowLimiter is a per-key sliding window limiter kept in process memory.
// It backs the HTTP rate limit when no Redis is configured.
type KeyedWindowLimiter struct {
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	mutex    sync.Mutex
}

func NewKeyedWindowLimiter(limit int, window time.Duration) *KeyedWindowLimiter {
	return &KeyedWindowLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow records a request for key and reports whether it fits in the window,
// along with how many requests remain.
func (kl *KeyedWindowLimiter) Allow(key string, now time.Time) (bool, int) {
	kl.mutex.Lock()
	defer kl.mutex.Unlock()

	cutoff := now.Add(-kl.window)
	valid := kl.requests[key][:0]
	for _, at := range kl.requests[key] {
		if at.After(cutoff) {
			valid = append(valid, at)
		}
	}

	if len(valid) >= kl.limit {
		kl.requests[key] = valid
		return false, 0
	}

	kl.requests[key] = append(valid, now)
	return true, kl.limit - len(kl.requests[key])
}
