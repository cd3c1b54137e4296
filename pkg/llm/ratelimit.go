package llm

import (
	"sync"
	"time"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/metrics"
)

// HourlyLimiter enforces a per-provider hourly call cap. The window
// starts at the first call and resets exactly one hour later. The
// critical section covers only increment and reset.
type HourlyLimiter struct {
	mu      sync.Mutex
	windows map[string]*limiterWindow
	now     func() time.Time
}

type limiterWindow struct {
	count int
	start time.Time
}

func NewHourlyLimiter() *HourlyLimiter {
	return &HourlyLimiter{
		windows: make(map[string]*limiterWindow),
		now:     time.Now,
	}
}

// Allow consumes one call for the provider. Over-cap calls fail with
// RateLimited carrying a retry-after hint in seconds.
func (l *HourlyLimiter) Allow(providerID string, capPerHour int) error {
	if capPerHour <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[providerID]
	if !ok || now.Sub(w.start) >= time.Hour {
		l.windows[providerID] = &limiterWindow{count: 1, start: now}
		return nil
	}
	if w.count >= capPerHour {
		retryAfter := int(time.Hour.Seconds() - now.Sub(w.start).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		metrics.RateLimited.Inc()
		return apperrors.RateLimited(retryAfter)
	}
	w.count++
	return nil
}

// Remaining reports how many calls are left in the current window.
func (l *HourlyLimiter) Remaining(providerID string, capPerHour int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[providerID]
	if !ok || l.now().Sub(w.start) >= time.Hour {
		return capPerHour
	}
	remaining := capPerHour - w.count
	if remaining < 0 {
		return 0
	}
	return remaining
}
