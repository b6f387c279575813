package ratelimit

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock returns a limiter whose time only moves when advance is called.
func fakeClock(l *Limiter) (advance func(time.Duration)) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.nowFunc = func() time.Time { return now }
	return func(d time.Duration) { now = now.Add(d) }
}

func TestAllow_Burst(t *testing.T) {
	tests := []struct {
		name    string
		burst   int
		allowed int
	}{
		{"burst of one", 1, 1},
		{"burst of three", 3, 3},
		{"zero burst", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLimiter(1, tt.burst)
			fakeClock(l)
			got := 0
			for i := 0; i < tt.burst+2; i++ {
				if l.Allow("k") {
					got++
				}
			}
			if got != tt.allowed {
				t.Errorf("allowed %d calls, want %d", got, tt.allowed)
			}
		})
	}
}

func TestAllow_Refill(t *testing.T) {
	l := NewLimiter(10, 2)
	advance := fakeClock(l)

	l.Allow("k")
	l.Allow("k")
	if l.Allow("k") {
		t.Fatal("expected rejection after burst")
	}

	advance(100 * time.Millisecond)
	if !l.Allow("k") {
		t.Error("expected one token after 100ms at 10/s")
	}
	if l.Allow("k") {
		t.Error("only one token should have refilled")
	}

	advance(time.Hour)
	if got := l.Tokens("k"); got != 2 {
		t.Errorf("tokens after a long wait = %v, want burst 2", got)
	}
}

func TestAllow_IndependentKeys(t *testing.T) {
	l := NewLimiter(0, 1)
	fakeClock(l)
	if !l.Allow("a") || l.Allow("a") {
		t.Fatal("key a should allow exactly one call")
	}
	if !l.Allow("b") {
		t.Error("key b has its own bucket")
	}
}

func TestPerMinute(t *testing.T) {
	l := PerMinute(30, 1)
	advance := fakeClock(l)
	l.Allow("k")
	advance(2 * time.Second)
	if !l.Allow("k") {
		t.Error("30/minute should refill one token every 2s")
	}
}

func TestAllow_Concurrent(t *testing.T) {
	l := NewLimiter(0, 50)
	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("k") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := allowed.Load(); got != 50 {
		t.Errorf("allowed %d concurrent calls, want 50", got)
	}
}

func TestCheckLimit(t *testing.T) {
	limiters := ToolLimiters{"episim_compare": NewLimiter(0, 1)}

	if err := CheckLimit(limiters, "episim_compare"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	err := CheckLimit(limiters, "episim_compare")
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("second call = %v, want ErrRateLimited", err)
	}
	if err := CheckLimit(limiters, "episim_unknown"); err != nil {
		t.Errorf("unlimited tool = %v, want nil", err)
	}
}

func TestNewToolLimiters(t *testing.T) {
	limiters := NewToolLimiters()
	for _, tool := range []string{"episim_run", "episim_compare", "episim_history", "episim_channel"} {
		if limiters[tool] == nil {
			t.Errorf("no limiter for %s", tool)
		}
	}
}
