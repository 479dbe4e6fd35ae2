package gateway

import (
	"sync"
	"time"
)

// PublishRateLimiter bounds how many messages a subject may publish per
// interval, sliding-window style. A limit of zero disables it entirely.
type PublishRateLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
}

func NewPublishRateLimiter(limit int, interval time.Duration) *PublishRateLimiter {
	return &PublishRateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *PublishRateLimiter) Allow(subject string) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[subject]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[subject] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[subject] = fresh
	return true
}
