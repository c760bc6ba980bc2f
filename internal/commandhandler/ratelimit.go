package commandhandler

import (
	"sync"
	"time"
)

// limiter is a per-key sliding-window request counter: prune expired
// timestamps, check capacity, append if allowed. Generalized from
// nevindra-oasis's ratelimit.go rateLimitProvider, which does the same
// prune-then-check-then-append dance for an outbound LLM call; here the
// window rejects instead of blocking, since a user-issued command should
// fail fast with a retry hint rather than stall the caller.
type limiter struct {
	mu       sync.Mutex
	window   time.Duration
	limit    int
	requests map[string][]time.Time
}

func newLimiter(limit int, window time.Duration) *limiter {
	return &limiter{
		limit:    limit,
		window:   window,
		requests: make(map[string][]time.Time),
	}
}

// allow reports whether key may proceed now, and if not, how long until
// the oldest request in its window expires.
func (l *limiter) allow(key string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	pruned := prune(l.requests[key], cutoff)

	if len(pruned) >= l.limit {
		l.requests[key] = pruned
		return false, pruned[0].Add(l.window).Sub(now)
	}

	l.requests[key] = append(pruned, now)
	return true, 0
}

func prune(timestamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(timestamps) && timestamps[i].Before(cutoff) {
		i++
	}
	return timestamps[i:]
}

// RateLimiter holds one sliding window per command family, with the
// defaults spec.md 4.9 names: 3/60s for summarize, 5/60s for
// config/schedule mutations.
type RateLimiter struct {
	summarize *limiter
	mutation  *limiter
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		summarize: newLimiter(3, time.Minute),
		mutation:  newLimiter(5, time.Minute),
	}
}

func (r *RateLimiter) AllowSummarize(userID string, now time.Time) (bool, time.Duration) {
	return r.summarize.allow(userID, now)
}

func (r *RateLimiter) AllowMutation(userID string, now time.Time) (bool, time.Duration) {
	return r.mutation.allow(userID, now)
}
