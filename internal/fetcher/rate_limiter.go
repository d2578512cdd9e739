package fetcher

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter ограничивает частоту запросов к каждому хосту отдельно.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	perHost map[string]*rate.Limiter
	mu      sync.Mutex
}

// Per — лимит в eventCount событий за duration.
func Per(eventCount int, duration time.Duration) rate.Limit {
	if eventCount <= 0 {
		return rate.Inf
	}
	return rate.Every(duration / time.Duration(eventCount))
}

func NewRateLimiter(rpm, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:   Per(rpm, time.Minute),
		burst:   burst,
		perHost: make(map[string]*rate.Limiter),
	}
}

func (rl *RateLimiter) limiter(host string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.perHost[host]
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.perHost[host] = l
	}
	return l
}

// Wait блокирует до появления токена для host или отмены ctx.
func (rl *RateLimiter) Wait(ctx context.Context, host string) error {
	return rl.limiter(host).Wait(ctx)
}
