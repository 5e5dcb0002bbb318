package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"otcpool/native/otc"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// identityLimiter keeps one token bucket per signing identity. Idle buckets
// are swept after idleTTL.
type identityLimiter struct {
	cfg      RateLimit
	clockNow func() time.Time
	idleTTL  time.Duration

	mu        sync.Mutex
	visitors  map[otc.Address]*limiterEntry
	lastSweep time.Time
}

func newIdentityLimiter(cfg RateLimit, now func() time.Time) *identityLimiter {
	if now == nil {
		now = time.Now
	}
	return &identityLimiter{
		cfg:      cfg,
		clockNow: now,
		idleTTL:  5 * time.Minute,
		visitors: make(map[otc.Address]*limiterEntry),
	}
}

func (l *identityLimiter) allow(id otc.Address) bool {
	if l == nil || l.cfg.RequestsPerMinute <= 0 {
		return true
	}
	now := l.clockNow()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)
	entry, ok := l.visitors[id]
	if !ok {
		burst := l.cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerMinute/60.0), burst)}
		l.visitors[id] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (l *identityLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idleTTL {
		return
	}
	l.lastSweep = now
	for id, entry := range l.visitors {
		if now.Sub(entry.lastSeen) > l.idleTTL {
			delete(l.visitors, id)
		}
	}
}
