package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// RateGovernor bounds concurrent crawl-mode requests and keeps a freed permit
// out of circulation for a cooldown. Every release is a scheduled event.
type RateGovernor struct {
	sem      *semaphore.Weighted
	capacity int64
	cooldown time.Duration
	log      *logrus.Entry

	mu     sync.Mutex
	timers map[*time.Timer]struct{} // Pending releases
}

// NewRateGovernor creates a governor with capacity permits and the given release cooldown
func NewRateGovernor(capacity int, cooldown time.Duration, log *logrus.Entry) *RateGovernor {
	limit := int64(capacity)
	if limit <= 0 {
		limit = 3
		log.Warnf("crawl permit capacity invalid or zero, defaulting to %d", limit)
	}
	return &RateGovernor{
		sem:      semaphore.NewWeighted(limit),
		capacity: limit,
		cooldown: cooldown,
		log:      log,
		timers:   make(map[*time.Timer]struct{}),
	}
}

// Acquire blocks until a permit is available or ctx is done.
// Waiters are served in arrival order.
func (g *RateGovernor) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	g.log.Debug("Acquired crawl permit")
	return nil
}

// Release returns a permit once the configured cooldown has elapsed
func (g *RateGovernor) Release() {
	g.ReleaseAfter(g.cooldown)
}

// ReleaseAfter schedules one permit to become available again after delay.
func (g *RateGovernor) ReleaseAfter(delay time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	// The callback takes g.mu, so it cannot observe t before it is stored below.
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		g.mu.Lock()
		delete(g.timers, t)
		g.mu.Unlock()

		g.sem.Release(1)
		g.log.Debug("Crawl permit cooldown elapsed, permit released")
	})
	g.timers[t] = struct{}{}
	g.log.WithField("cooldown", delay).Debug("Crawl permit release scheduled")
}

// Pending returns how many releases are scheduled but have not fired yet
func (g *RateGovernor) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.timers)
}

// Capacity returns the number of permits
func (g *RateGovernor) Capacity() int {
	return int(g.capacity)
}

// Stop cancels every pending release. Permits held by those releases are never
// returned, so the governor must not be used afterwards.
func (g *RateGovernor) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for t := range g.timers {
		t.Stop()
		delete(g.timers, t)
	}
}
