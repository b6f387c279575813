// Package ratelimit throttles MCP tool calls with per-key token buckets, so
// an agent cannot queue unbounded simulation work.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrRateLimited is wrapped by CheckLimit when a call is rejected.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limiter is a per-key token bucket. Every key starts with a full bucket of
// burst tokens that refills at rate tokens per second. Safe for concurrent
// use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   int
	nowFunc func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewLimiter creates a limiter with the given refill rate and burst size.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		nowFunc: time.Now,
	}
}

// PerMinute is NewLimiter with the rate given in calls per minute.
func PerMinute(calls float64, burst int) *Limiter {
	return NewLimiter(calls/60, burst)
}

// Allow takes one token for key and reports whether one was available.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.refill(key, l.nowFunc())
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Tokens returns the tokens currently available for key.
func (l *Limiter) Tokens(key string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refill(key, l.nowFunc()).tokens
}

func (l *Limiter) refill(key string, now time.Time) *bucket {
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), last: now}
		l.buckets[key] = b
		return b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = min(b.tokens+l.rate*elapsed, float64(l.burst))
		b.last = now
	}
	return b
}

// ToolLimiters maps tool names to their limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters returns the default limits for the episim MCP tools.
// Comparisons run several ensembles and get the tightest limit.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"episim_run":     PerMinute(20, 5),
		"episim_compare": PerMinute(4, 1),
		"episim_history": PerMinute(60, 10),
		"episim_channel": PerMinute(120, 20),
	}
}

// CheckLimit returns an error wrapping ErrRateLimited if toolName is over
// its limit. Tools without a limiter are never limited.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil
	}
	if !limiter.Allow(toolName) {
		return fmt.Errorf("%w for %s, please try again shortly", ErrRateLimited, toolName)
	}
	return nil
}
