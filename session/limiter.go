package session

import (
	"context"
	"strings"
	"time"
)

const (
	rateLimitPrefix = "rate_limit"
	lastSeenPrefix  = "user:lastseen"
)

func buildKey(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ":")
}

// Limiter is a fixed-window counter. The window starts with the first hit;
// the backend sets the TTL together with the increment.
type Limiter struct {
	be     Backend
	limit  int64
	window time.Duration
}

func NewLimiter(be Backend, limit int64, window time.Duration) *Limiter {
	return &Limiter{be: be, limit: limit, window: window}
}

// Allow records one hit for scope and reports whether it is within the limit.
func (l *Limiter) Allow(ctx context.Context, scope string) (bool, int64, error) {
	k := buildKey(rateLimitPrefix, scope)
	count, err := l.be.Incr(ctx, k, l.window)
	if err != nil {
		return false, 0, err
	}
	return count <= l.limit, count, nil
}

// Reset clears the window, e.g. after a successful login.
func (l *Limiter) Reset(ctx context.Context, scope string) error {
	return l.be.Del(ctx, buildKey(rateLimitPrefix, scope))
}

// SeenThrottle reports true at most once per window for a given user.
type SeenThrottle struct {
	be     Backend
	window time.Duration
}

func NewSeenThrottle(be Backend, window time.Duration) *SeenThrottle {
	return &SeenThrottle{be: be, window: window}
}

func (t *SeenThrottle) ShouldTouch(ctx context.Context, userID string) (bool, error) {
	return t.be.SetNX(ctx, buildKey(lastSeenPrefix, userID), []byte("1"), t.window)
}
