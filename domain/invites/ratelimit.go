package invites

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/erlendps/thingbooker/internal/config"
)

// AcceptLimiter throttles token accept attempts per user.
type AcceptLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewAcceptLimiter creates a limiter allowing perMinute attempts per user
func NewAcceptLimiter(perMinute int) *AcceptLimiter {
	if perMinute <= 0 {
		perMinute = 10
	}
	return &AcceptLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}
}

// NewAcceptLimiterFromConfig creates the limiter from app config
func NewAcceptLimiterFromConfig(cfg *config.Config) *AcceptLimiter {
	return NewAcceptLimiter(cfg.Invite.AcceptRatePerMin)
}

// Allow reports whether userID may make another attempt now.
func (l *AcceptLimiter) Allow(userID string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[userID] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// Prune drops limiters that have refilled completely, bounding memory.
func (l *AcceptLimiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for id, limiter := range l.limiters {
		if limiter.Tokens() >= float64(l.burst) {
			delete(l.limiters, id)
			removed++
		}
	}
	return removed
}
