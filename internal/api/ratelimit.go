package api

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimits exposes the per-role request budget from the role table.
type RateLimits interface {
	RateLimit(role string) int
}

// roleLimiter enforces per-role request rates. Each role gets a token bucket
// refilled at its configured requests-per-minute with a burst of the same
// size; limiters are created lazily on first use.
type roleLimiter struct {
	limits RateLimits

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newRoleLimiter(limits RateLimits) *roleLimiter {
	return &roleLimiter{
		limits:   limits,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the role may make a request right now.
func (l *roleLimiter) Allow(role string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[role]
	if !ok {
		perMinute := l.limits.RateLimit(role)
		lim = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
		l.limiters[role] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
