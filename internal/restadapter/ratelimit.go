package restadapter

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// principalLimiters holds one token-bucket limiter per authenticated
// principal, default 100 req/min, evicted after sitting idle so a
// long-running process doesn't accumulate one limiter per caller
// forever.
type principalLimiters struct {
	mu       sync.Mutex
	limiters map[string]*entry
	rps      rate.Limit
	burst    int
	idleTTL  time.Duration
}

type entry struct {
	limiter    *rate.Limiter
	lastSeenAt time.Time
}

func newPrincipalLimiters(perMinute int, idleTTL time.Duration) *principalLimiters {
	if perMinute <= 0 {
		perMinute = 100
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &principalLimiters{
		limiters: make(map[string]*entry),
		rps:      rate.Limit(float64(perMinute) / 60),
		burst:    perMinute,
		idleTTL:  idleTTL,
	}
}

func (p *principalLimiters) allow(principalID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	p.evictIdle(now)

	e, ok := p.limiters[principalID]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(p.rps, p.burst)}
		p.limiters[principalID] = e
	}
	e.lastSeenAt = now

	return e.limiter.Allow()
}

func (p *principalLimiters) evictIdle(now time.Time) {
	for id, e := range p.limiters {
		if now.Sub(e.lastSeenAt) > p.idleTTL {
			delete(p.limiters, id)
		}
	}
}

// RateLimitMiddleware rejects requests from a principal exceeding its
// per-minute token bucket with a 429 and a stable error envelope.
func RateLimitMiddleware(perMinute int) func(http.Handler) http.Handler {
	limiters := newPrincipalLimiters(perMinute, 10*time.Minute)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			key := "anonymous"
			if ok {
				key = principal.ID
			}

			if !limiters.allow(key) {
				writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", 60)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
