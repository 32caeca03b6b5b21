package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/okian/skyrank/internal/adapters/repository"
	"github.com/okian/skyrank/internal/domain/leaderboard"
	"github.com/okian/skyrank/pkg/logger"
	"github.com/okian/skyrank/pkg/metrics"
)

const defaultRolloverInterval = 30 * time.Second

// Roller closes monthly intervals. Closing a month freezes its partitions
// and opens the next one. Each leaderboard has its own lock: monthly writes
// hold it shared, a rollover holds it exclusively.
type Roller struct {
	registry *leaderboard.Registry
	store    *repository.Store
	calendar *leaderboard.Calendar
	interval time.Duration
	logger   logger.Logger

	locks *xsync.MapOf[string, *sync.RWMutex]
	open  *xsync.MapOf[string, leaderboard.Interval]

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewRoller creates a roller whose open month starts at the calendar's
// current month.
func NewRoller(registry *leaderboard.Registry, store *repository.Store, calendar *leaderboard.Calendar, interval time.Duration, l logger.Logger) *Roller {
	if interval <= 0 {
		interval = defaultRolloverInterval
	}
	return &Roller{
		registry: registry,
		store:    store,
		calendar: calendar,
		interval: interval,
		logger:   l,
		locks:    xsync.NewMapOf[string, *sync.RWMutex](),
		open:     xsync.NewMapOf[string, leaderboard.Interval](),
		stopChan: make(chan struct{}),
	}
}

func (r *Roller) lock(id string) *sync.RWMutex {
	mu, _ := r.locks.LoadOrCompute(id, func() *sync.RWMutex { return &sync.RWMutex{} })
	return mu
}

// OpenMonth returns the month currently accepting writes for id.
func (r *Roller) OpenMonth(id string) leaderboard.Interval {
	open, _ := r.open.LoadOrCompute(id, r.calendar.CurrentMonth)
	return open
}

// withMonth runs fn with id's open month while holding its rollover lock
// shared. The calendar month wins when it is ahead of a month not yet
// rolled, so writes never land in a month about to be frozen.
func (r *Roller) withMonth(id string, fn func(month leaderboard.Interval) error) error {
	mu := r.lock(id)
	mu.RLock()
	defer mu.RUnlock()

	month := r.OpenMonth(id)
	if cur := r.calendar.CurrentMonth(); month.Before(cur) {
		month = cur
	}
	return fn(month)
}

// Roll closes interval closed of leaderboard id. Rolling an interval that
// is already closed is a no-op and returns false. A month after the open
// month that the calendar has not yet passed is rejected.
func (r *Roller) Roll(ctx context.Context, id string, closed leaderboard.Interval) (bool, error) {
	def, err := r.registry.Get(id)
	if err != nil {
		return false, fmt.Errorf("service.Roll: %w", err)
	}
	if !def.Supports(leaderboard.IntervalMonthly) {
		return false, fmt.Errorf("service.Roll %s: %w: not monthly", id, leaderboard.ErrInvalidInterval)
	}
	next, err := closed.Next()
	if err != nil {
		return false, fmt.Errorf("service.Roll %s: %w", id, err)
	}

	mu := r.lock(id)
	mu.Lock()
	defer mu.Unlock()

	open := r.OpenMonth(id)
	if closed.Before(open) {
		metrics.RecordRollover("noop")
		return false, nil
	}
	// Only the open month or a month the calendar has already left can close.
	if closed != open && !closed.Before(r.calendar.CurrentMonth()) {
		return false, fmt.Errorf("service.Roll %s: %w: %s is not over (open %s)", id, leaderboard.ErrInvalidInterval, closed, open)
	}

	frozen := r.store.FreezeInterval(id, closed)
	r.open.Store(id, next)
	metrics.RecordRollover("ok")
	r.logger.Info(ctx, "interval rolled over",
		logger.String("leaderboard", id),
		logger.String("closed", closed.String()),
		logger.String("opened", next.String()),
		logger.Int("partitions", frozen),
	)
	return true, nil
}

// Check rolls every monthly leaderboard whose open month is behind the
// calendar, one month at a time. Returns the number of rollovers.
func (r *Roller) Check(ctx context.Context) int {
	cur := r.calendar.CurrentMonth()
	rolled := 0
	for _, def := range r.registry.All() {
		if !def.Supports(leaderboard.IntervalMonthly) {
			continue
		}
		for open := r.OpenMonth(def.ID); open.Before(cur); open = r.OpenMonth(def.ID) {
			ok, err := r.Roll(ctx, def.ID, open)
			if err != nil {
				metrics.RecordRollover("error")
				r.logger.Error(ctx, "rollover failed",
					logger.String("leaderboard", def.ID),
					logger.String("interval", open.String()),
					logger.Error(err),
				)
				break
			}
			if ok {
				rolled++
			}
		}
	}
	return rolled
}

// Start runs Check on a ticker until ctx is done or Stop is called.
func (r *Roller) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			case <-ticker.C:
				r.Check(ctx)
			}
		}
	}()
}

// Stop halts the ticker loop and waits for it to exit.
func (r *Roller) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
	r.wg.Wait()
}
