package auth

import (
	"context"
	"sync"
	"time"
)

// RateLimiter decides whether an identity may make another request.
type RateLimiter interface {
	Allow(ctx context.Context, id *Identity) error
}

// TierConfig holds the rate limit of a service tier.
type TierConfig struct {
	RequestsPerMinute int
}

// WindowLimiter counts requests per subject and tier in fixed one-minute
// windows. It is process local.
type WindowLimiter struct {
	tiers      map[string]TierConfig
	defaultRPM int
	now        func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	start time.Time
	count int
}

// pruneThreshold is the window count above which expired windows are swept.
const pruneThreshold = 10000

// NewWindowLimiter creates a limiter. Tiers without an entry use
// defaultRPM; a limit of zero or less disables limiting for that tier.
func NewWindowLimiter(tiers map[string]TierConfig, defaultRPM int) *WindowLimiter {
	return &WindowLimiter{
		tiers:      tiers,
		defaultRPM: defaultRPM,
		now:        time.Now,
		windows:    make(map[string]*window),
	}
}

// Allow returns ErrTooManyRequests once the identity's window is used up.
func (l *WindowLimiter) Allow(_ context.Context, id *Identity) error {
	tier := id.Tier()
	rpm := l.defaultRPM
	if tc, ok := l.tiers[tier]; ok {
		rpm = tc.RequestsPerMinute
	}
	if rpm <= 0 {
		return nil
	}

	key := id.Subject + "\x00" + tier
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= time.Minute {
		if len(l.windows) >= pruneThreshold {
			l.prune(now)
		}
		l.windows[key] = &window{start: now, count: 1}
		return nil
	}
	if w.count >= rpm {
		return ErrTooManyRequests
	}
	w.count++
	return nil
}

func (l *WindowLimiter) prune(now time.Time) {
	for k, w := range l.windows {
		if now.Sub(w.start) >= time.Minute {
			delete(l.windows, k)
		}
	}
}
