package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/AGO523/node-news-notification/internal/metrics"
)

type callerCounters struct {
	burstStart     time.Time
	burstCount     int
	sustainedStart time.Time
	sustainedCount int
}

// MemoryLimiter keeps fixed-window counters per caller in process memory.
// Counters reset on restart; the limiter is a soft throttle, not a security
// boundary. Safe for concurrent use.
type MemoryLimiter struct {
	mu        sync.Mutex
	callers   map[string]*callerCounters
	burst     Window
	sustained Window

	now  func() time.Time
	stop chan struct{}
	done chan struct{}
}

// NewMemoryLimiter creates an in-memory limiter with the given burst and
// sustained windows. A janitor goroutine prunes idle callers until Close.
func NewMemoryLimiter(burst, sustained Window) *MemoryLimiter {
	l := &MemoryLimiter{
		callers:   make(map[string]*callerCounters),
		burst:     burst,
		sustained: sustained,
		now:       time.Now,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	go l.janitor()

	return l
}

// Allow admits the request if both windows have capacity. Counters are only
// consumed on admission, so a rejected request does not burn quota.
func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	c, ok := l.callers[key]
	if !ok {
		c = &callerCounters{burstStart: now, sustainedStart: now}
		l.callers[key] = c
	}

	if now.Sub(c.burstStart) >= l.burst.Duration {
		c.burstStart = now
		c.burstCount = 0
	}
	if now.Sub(c.sustainedStart) >= l.sustained.Duration {
		c.sustainedStart = now
		c.sustainedCount = 0
	}

	var retryAfter time.Duration
	if c.burstCount >= l.burst.Limit {
		retryAfter = c.burstStart.Add(l.burst.Duration).Sub(now)
		metrics.RateLimitHits.WithLabelValues("burst").Inc()
	}
	if c.sustainedCount >= l.sustained.Limit {
		if wait := c.sustainedStart.Add(l.sustained.Duration).Sub(now); wait > retryAfter {
			retryAfter = wait
		}
		metrics.RateLimitHits.WithLabelValues("sustained").Inc()
	}

	if retryAfter > 0 {
		return Decision{Allowed: false, RetryAfter: retryAfter}, nil
	}

	c.burstCount++
	c.sustainedCount++
	return Decision{Allowed: true}, nil
}

// Close stops the janitor goroutine.
func (l *MemoryLimiter) Close() error {
	close(l.stop)
	<-l.done
	return nil
}

func (l *MemoryLimiter) janitor() {
	defer close(l.done)

	interval := l.sustained.Duration
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.prune()
		case <-l.stop:
			return
		}
	}
}

// prune drops callers whose sustained window has fully elapsed.
func (l *MemoryLimiter) prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, c := range l.callers {
		if now.Sub(c.sustainedStart) >= l.sustained.Duration && now.Sub(c.burstStart) >= l.burst.Duration {
			delete(l.callers, key)
		}
	}
}
