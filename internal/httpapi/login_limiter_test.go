package httpapi

import (
	"testing"
	"time"
)

func TestLoginLimiterBurstAndRefill(t *testing.T) {
	l := newLoginLimiter()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := range l.burst {
		if !l.Allow("ip:1.2.3.4", now) {
			t.Fatalf("attempt %d rejected inside burst", i+1)
		}
	}
	if l.Allow("ip:1.2.3.4", now) {
		t.Fatalf("expected rejection after burst")
	}
	if !l.Allow("ip:5.6.7.8", now) {
		t.Fatalf("keys must be independent")
	}
	if !l.Allow("ip:1.2.3.4", now.Add(l.every)) {
		t.Fatalf("expected a token after refill interval")
	}
}

func TestLoginLimiterAllowAllChargesEveryKey(t *testing.T) {
	l := newLoginLimiter()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for range l.burst {
		l.Allow("email:a@example.com", now)
	}
	if l.AllowAll(now, "ip:1.2.3.4", "email:a@example.com") {
		t.Fatalf("expected rejection when one key is exhausted")
	}
	// The ip key was still charged.
	for range l.burst - 1 {
		l.Allow("ip:1.2.3.4", now)
	}
	if l.Allow("ip:1.2.3.4", now) {
		t.Fatalf("expected ip key exhausted")
	}
}

func TestLoginLimiterForgetsIdleKeys(t *testing.T) {
	l := newLoginLimiter()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	l.Allow("ip:old", now)
	l.Allow("ip:new", now.Add(2*l.ttl))

	if _, ok := l.entries["ip:old"]; ok {
		t.Fatalf("expected idle key evicted")
	}
}
