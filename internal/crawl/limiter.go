package crawl

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// siteLimiter enforces a minimum gap between two dispatches to the same site.
type siteLimiter struct {
	gap time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newSiteLimiter(gap time.Duration) *siteLimiter {
	return &siteLimiter{gap: gap, limiters: make(map[string]*rate.Limiter)}
}

// Wait blocks until a task for domain may be dispatched.
func (l *siteLimiter) Wait(ctx context.Context, domain string) error {
	if l == nil || l.gap <= 0 || domain == "" {
		return ctx.Err()
	}
	return l.limiter(strings.ToLower(domain)).Wait(ctx)
}

func (l *siteLimiter) limiter(domain string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[domain]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.gap), 1)
		l.limiters[domain] = lim
	}
	return lim
}
