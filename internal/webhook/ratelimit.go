package webhook

import (
	"sync"
	"time"
)

// RateLimitResult reports the outcome of a rate-limit check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RateLimiter gates webhook deliveries per source key. The handler depends
// on this interface so a shared store (Redis, for multi-instance ingress)
// can replace the in-memory implementation without touching the handler.
type RateLimiter interface {
	Check(key string) RateLimitResult
}

// MemoryRateLimiter is a fixed-window counter keyed by source IP. Counts
// reset at window boundaries; state is per-process and lost on restart,
// which is acceptable because the limit exists to absorb floods, not to
// meter usage precisely.
type MemoryRateLimiter struct {
	maxRequests int
	window      time.Duration
	now         func() time.Time

	mu      sync.Mutex
	windows map[string]*requestWindow
}

type requestWindow struct {
	start time.Time
	count int
}

func NewMemoryRateLimiter(maxRequests int, window time.Duration) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
		windows:     make(map[string]*requestWindow),
	}
}

// Check counts the request against the key's current window and reports
// whether it is allowed. The request is counted even when denied.
func (l *MemoryRateLimiter) Check(key string) RateLimitResult {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.window {
		w = &requestWindow{start: now}
		l.windows[key] = w
	}
	w.count++

	remaining := l.maxRequests - w.count
	if remaining < 0 {
		remaining = 0
	}

	return RateLimitResult{
		Allowed:   w.count <= l.maxRequests,
		Remaining: remaining,
		ResetAt:   w.start.Add(l.window),
	}
}

// Prune drops windows that ended before now. Called periodically to keep
// the map from accumulating dead source keys.
func (l *MemoryRateLimiter) Prune() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, w := range l.windows {
		if now.Sub(w.start) >= l.window {
			delete(l.windows, key)
		}
	}
}
