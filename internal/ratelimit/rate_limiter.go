package ratelimit

import (
	"log"
	"sync"
	"time"
)

const windowLength = time.Hour

// RateWindow counts requests for one identity until resetAt passes, after
// which the next request replaces the window instead of incrementing it.
type RateWindow struct {
	Count   int
	ResetAt time.Time
}

// RateLimiter enforces a per-identity hourly ceiling. All map access is
// mutex-guarded; lookup-then-increment must stay a single critical section.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*RateWindow
	ceiling int
	logger  *log.Logger
	now     func() time.Time
}

func NewRateLimiter(ceiling int, logger *log.Logger) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*RateWindow),
		ceiling: ceiling,
		logger:  logger,
		now:     time.Now,
	}
}

// CheckLimit reports whether a request from identity is allowed. The first
// request per identity, or the first after the window reset, always passes;
// a burst exactly at the reset boundary is never throttled.
func (rl *RateLimiter) CheckLimit(identity string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[identity]
	if !ok || now.After(w.ResetAt) {
		rl.windows[identity] = &RateWindow{
			Count:   1,
			ResetAt: now.Add(windowLength),
		}
		return true
	}

	w.Count++
	if w.Count > rl.ceiling {
		rl.logger.Printf("rate limit exceeded for %s (%d/%d)", identity, w.Count, rl.ceiling)
		return false
	}
	return true
}

// TimeUntilReset returns how long identity must wait for a fresh window.
// Unknown identities and expired windows report zero.
func (rl *RateLimiter) TimeUntilReset(identity string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[identity]
	if !ok {
		return 0
	}
	remaining := w.ResetAt.Sub(rl.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Cleanup drops expired windows. Safe to call at any cadence; an active
// window is never removed.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for identity, w := range rl.windows {
		if now.After(w.ResetAt) {
			delete(rl.windows, identity)
		}
	}
}

// ActiveWindows reports the number of tracked identities.
func (rl *RateLimiter) ActiveWindows() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}
