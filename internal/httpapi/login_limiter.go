package httpapi

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// loginLimiter is a keyed token bucket used for credential and reset
// endpoints. Keys are namespaced by the caller ("ip:", "email:").
type loginLimiter struct {
	mu      sync.Mutex
	every   time.Duration
	burst   int
	ttl     time.Duration
	entries map[string]*limiterEntry
	lastGC  time.Time
}

func newLoginLimiter() *loginLimiter {
	return &loginLimiter{
		every:   30 * time.Second,
		burst:   10,
		ttl:     10 * time.Minute,
		entries: make(map[string]*limiterEntry),
	}
}

func (l *loginLimiter) Allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastGC) > l.ttl {
		for k, e := range l.entries {
			if now.Sub(e.lastSeen) > l.ttl {
				delete(l.entries, k)
			}
		}
		l.lastGC = now
	}

	e, ok := l.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Every(l.every), l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// AllowAll consumes one token from every key and reports whether all of them
// had capacity. Every key is charged even when an earlier one is exhausted.
func (l *loginLimiter) AllowAll(now time.Time, keys ...string) bool {
	ok := true
	for _, k := range keys {
		if !l.Allow(k, now) {
			ok = false
		}
	}
	return ok
}
