// Package scheduler drives the crawl: the priority frontier loop,
// link priority assignment, and politeness throttling.
package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/priority-crawler/prowl/internal/config"
)

// Throttle computes the politeness delay before each fetch and
// enforces a per-host request rate with robots crawl-delay floors.
type Throttle struct {
	mu       sync.Mutex
	min      time.Duration
	max      time.Duration
	adaptive bool
	rng      *rand.Rand
	hostRate float64
	limiters map[string]*rate.Limiter
	floors   map[string]time.Duration
}

// NewThrottle builds a throttle from the politeness settings.
func NewThrottle(cfg *config.CrawlConfig) *Throttle {
	return &Throttle{
		min:      cfg.DelayMin,
		max:      cfg.DelayMax,
		adaptive: cfg.AdaptiveDelay,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		hostRate: cfg.PerHostRateLimit,
		limiters: make(map[string]*rate.Limiter),
		floors:   make(map[string]time.Duration),
	}
}

// SetHostFloor installs a minimum request interval for a host, taken
// from its robots crawl-delay. Replaces any existing limiter.
func (t *Throttle) SetHostFloor(host string, floor time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if floor <= 0 {
		return
	}
	t.floors[host] = floor
	t.limiters[host] = rate.NewLimiter(rate.Every(t.hostInterval(floor)), 1)
}

// Delay returns the politeness delay for one request. In adaptive
// mode the delay scales with the entry's priority across the
// [min,max] range, jittered by up to one second; otherwise it is a
// uniform draw from [min,max].
func (t *Throttle) Delay(priority float64) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	span := t.max - t.min
	if span < 0 {
		span = 0
	}

	if !t.adaptive {
		if span == 0 {
			return t.min
		}
		return t.min + time.Duration(t.rng.Float64()*float64(span))
	}

	if priority < 0 {
		priority = 0
	} else if priority > 100 {
		priority = 100
	}

	base := t.min + time.Duration(float64(span)*priority/100)
	jitter := time.Duration(t.rng.Float64() * float64(time.Second))
	return base + jitter
}

// Wait sleeps the politeness delay for the entry, then blocks on the
// host's rate limiter. Returns early with the context error when the
// context is cancelled.
func (t *Throttle) Wait(ctx context.Context, host string, priority float64) error {
	if delay := t.Delay(priority); delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return t.limiter(host).Wait(ctx)
}

// limiter returns the host's rate limiter, creating it on first use.
func (t *Throttle) limiter(host string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	if lim, exists := t.limiters[host]; exists {
		return lim
	}

	lim := rate.NewLimiter(rate.Every(t.hostInterval(t.floors[host])), 1)
	t.limiters[host] = lim
	return lim
}

// hostInterval picks the larger of the configured per-host interval
// and the robots crawl-delay floor.
func (t *Throttle) hostInterval(floor time.Duration) time.Duration {
	interval := time.Duration(0)
	if t.hostRate > 0 {
		interval = time.Duration(float64(time.Second) / t.hostRate)
	}
	if floor > interval {
		interval = floor
	}
	if interval <= 0 {
		interval = time.Millisecond
	}
	return interval
}
