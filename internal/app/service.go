// Package service wires the ranking engine: the sync pipeline behind the
// write API, the query service behind the read API and the rollover loop.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	eventqueue "github.com/okian/skyrank/internal/adapters/mq/queue"
	workerpool "github.com/okian/skyrank/internal/adapters/mq/worker"
	"github.com/okian/skyrank/internal/adapters/metadata"
	"github.com/okian/skyrank/internal/adapters/repository"
	"github.com/okian/skyrank/internal/domain/dedupe"
	"github.com/okian/skyrank/internal/domain/leaderboard"
	"github.com/okian/skyrank/internal/domain/model"
	"github.com/okian/skyrank/internal/domain/scoring"
	"github.com/okian/skyrank/internal/domain/types"
	"github.com/okian/skyrank/pkg/logger"
	"github.com/okian/skyrank/pkg/metrics"
)

// Service implements the read and write APIs of the ranking engine.
type Service struct {
	mu sync.RWMutex

	registry  *leaderboard.Registry
	extractor *scoring.Extractor
	modes     leaderboard.GameModes
	calendar  *leaderboard.Calendar
	legacy    RankProvider
	meta      metadata.Provider

	legacyWarmer Warmer
	warmOnMiss   bool

	store      *repository.Store
	deduper    dedupe.Deduper
	eventQueue *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool
	pipeline   *Pipeline
	roller     *Roller
	query      *Query

	workerCount      int
	queueSize        int
	dedupeSize       int
	queryConfig      QueryConfig
	rolloverInterval time.Duration

	started bool
	cancel  context.CancelFunc
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the change queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the change id cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRegistry serves the given leaderboards instead of the built-in
// catalog. The registry is sealed on Start.
func WithRegistry(r *leaderboard.Registry) Option {
	return func(s *Service) {
		if r != nil {
			s.registry = r
		}
	}
}

// WithExtractor sets the score extractor.
func WithExtractor(e *scoring.Extractor) Option {
	return func(s *Service) {
		if e != nil {
			s.extractor = e
		}
	}
}

// WithGameModes sets the game modes that get their own partitions.
func WithGameModes(modes []string) Option {
	return func(s *Service) {
		s.modes = leaderboard.NewGameModes(modes)
	}
}

// WithLegacy routes legacy leaderboards to provider. warmer, when not nil,
// is used by WithWarmOnMiss.
func WithLegacy(provider RankProvider, warmer Warmer) Option {
	return func(s *Service) {
		s.legacy = provider
		if warmer != nil {
			s.legacyWarmer = warmer
		}
	}
}

// WithWarmOnMiss fills cold store partitions from the legacy warmer.
func WithWarmOnMiss(enabled bool) Option {
	return func(s *Service) {
		s.warmOnMiss = enabled
	}
}

// WithMetadata sets the display metadata provider.
func WithMetadata(p metadata.Provider) Option {
	return func(s *Service) {
		s.meta = p
	}
}

// WithCalendar sets the clock months are derived from.
func WithCalendar(c *leaderboard.Calendar) Option {
	return func(s *Service) {
		if c != nil {
			s.calendar = c
		}
	}
}

// WithMaxSliceLimit caps the page size of GetSlice.
func WithMaxSliceLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.queryConfig.MaxSliceLimit = limit
		}
	}
}

// WithDefaultUpcoming sets the window used when includeUpcoming is asked
// without an explicit size.
func WithDefaultUpcoming(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.queryConfig.DefaultUpcoming = n
		}
	}
}

// WithMultiRankConcurrency bounds the lookups of one GetMultipleRanks call.
func WithMultiRankConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queryConfig.MultiRankConcurrency = n
		}
	}
}

// WithRolloverInterval sets how often month boundaries are checked.
func WithRolloverInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.rolloverInterval = d
		}
	}
}

// New constructs a Service. Without WithRegistry it serves the built-in
// catalog.
func New(opts ...Option) *Service {
	s := &Service{
		modes:            leaderboard.NewGameModes(nil),
		workerCount:      runtime.NumCPU() * 4,
		queueSize:        100_000,
		dedupeSize:       500_000,
		rolloverInterval: defaultRolloverInterval,
		queryConfig: QueryConfig{
			MaxSliceLimit:        repository.MaxSliceLimit,
			DefaultUpcoming:      10,
			MultiRankConcurrency: 8,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil || s.extractor == nil {
		defs, funcs := scoring.Split(scoring.Catalog())
		if s.registry == nil {
			s.registry = leaderboard.NewRegistry()
			for _, d := range defs {
				s.registry.MustRegister(d)
			}
		}
		if s.extractor == nil {
			s.extractor = scoring.NewExtractor(scoring.WithFuncs(funcs))
		}
	}
	if s.calendar == nil {
		s.calendar = leaderboard.NewCalendar(nil)
	}
	return s
}

// Start builds the store and starts the workers and the rollover loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting ranking service...")

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.registry.Seal()

	s.store = repository.NewStore(ctx)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))

	s.roller = NewRoller(s.registry, s.store, s.calendar, s.rolloverInterval, s.logger.Named("rollover"))
	s.pipeline = NewPipeline(s.registry, s.extractor, s.store, s.modes, s.roller, s.logger.Named("sync"))
	var warmer Warmer
	if s.warmOnMiss {
		warmer = s.legacyWarmer
	}
	s.query = NewQuery(s.registry, s.modes,
		newStoreProvider(s.store, warmer, s.calendar, s.logger.Named("store")),
		s.legacy, s.meta, s.queryConfig, s.logger.Named("query"))

	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s, workerpool.WithPoolLogger(s.logger.Named("worker")))
	s.workerPool.Start(ctx)
	s.roller.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "ranking service started",
		logger.Int("leaderboards", s.registry.Len()),
		logger.Strings("gameModes", s.modes.List()),
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Bool("legacy", s.legacy != nil),
		logger.Bool("warmOnMiss", warmer != nil),
	)
	return nil
}

// Stop drains the queue and stops background work.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping ranking service...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.workerPool.Shutdown(shutdownCtx); err != nil {
		s.logger.Error(ctx, "worker pool shutdown failed", logger.Error(err))
	}
	s.roller.Stop()
	_ = s.store.Close()
	s.cancel()

	s.started = false
	s.logger.Info(ctx, "ranking service stopped")
}

// NotifyEntityChanged queues a change for the sync pipeline and returns
// without waiting for it. It reports false when the change is malformed or
// the queue is full; a duplicate change id is accepted and dropped.
func (s *Service) NotifyEntityChanged(ctx context.Context, change model.EntityChange) bool { //nolint:gocritic // hugeParam: queued by value
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return false
	}

	if err := change.Snapshot.Validate(); err != nil {
		s.logger.Debug(ctx, "rejected malformed change", logger.Error(err))
		return false
	}
	if change.ChangeID == "" {
		change.ChangeID = uuid.NewString()
	}
	if change.ReceivedAt.IsZero() {
		change.ReceivedAt = s.calendar.Now()
	}

	if s.deduper.SeenAndRecord(ctx, change.ChangeID) {
		metrics.RecordChangeDuplicate()
		s.logger.Debug(ctx, "duplicate change skipped", logger.String("changeID", change.ChangeID))
		return true
	}
	if !s.eventQueue.Enqueue(ctx, change) {
		s.deduper.Unrecord(ctx, change.ChangeID)
		return false
	}
	return true
}

// Sync applies a change synchronously. Workers call it for queued changes.
func (s *Service) Sync(ctx context.Context, change model.EntityChange) error { //nolint:gocritic // hugeParam: queued by value
	return s.pipeline.OnEntityChanged(ctx, change).Err
}

// OnEntityChanged applies a change synchronously and reports what changed.
func (s *Service) OnEntityChanged(ctx context.Context, change model.EntityChange) (Report, error) { //nolint:gocritic // hugeParam: queued by value
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return Report{}, ErrNotStarted
	}
	return s.pipeline.OnEntityChanged(ctx, change), nil
}

// Leaderboards lists the registered leaderboards.
func (s *Service) Leaderboards() []types.Leaderboard {
	if q := s.queryService(); q != nil {
		return q.Leaderboards()
	}
	return nil
}

// GetSlice returns a page of leaderboard id.
func (s *Service) GetSlice(ctx context.Context, id string, q SliceQuery) (*types.Slice, error) {
	qs := s.queryService()
	if qs == nil {
		return nil, ErrNotStarted
	}
	return qs.GetSlice(ctx, id, q)
}

// GetRank returns one entity's standing on leaderboard id.
func (s *Service) GetRank(ctx context.Context, id string, q RankQuery) (*types.Position, error) {
	qs := s.queryService()
	if qs == nil {
		return nil, ErrNotStarted
	}
	return qs.GetRank(ctx, id, q)
}

// GetMultipleRanks returns one entity's standing on each of ids.
func (s *Service) GetMultipleRanks(ctx context.Context, ids []string, q RankQuery) (map[string]*types.Position, error) {
	qs := s.queryService()
	if qs == nil {
		return nil, ErrNotStarted
	}
	return qs.GetMultipleRanks(ctx, ids, q)
}

// Roll closes a month of leaderboard id ahead of the rollover loop.
func (s *Service) Roll(ctx context.Context, id string, closed leaderboard.Interval) (bool, error) {
	s.mu.RLock()
	r := s.roller
	s.mu.RUnlock()
	if r == nil {
		return false, ErrNotStarted
	}
	return r.Roll(ctx, id, closed)
}

func (s *Service) queryService() *Query {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil
	}
	return s.query
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":      s.started,
		"leaderboards": s.registry.Len(),
		"gameModes":    s.modes.List(),
		"workerCount":  s.workerCount,
		"queueSize":    s.queueSize,
		"dedupeSize":   s.dedupeSize,
		"legacy":       s.legacy != nil,
	}
	if !s.started {
		return stats
	}

	st := s.store.Stats()
	stats["queueLength"] = s.eventQueue.Len()
	stats["dedupeEntries"] = s.deduper.Size()
	stats["partitions"] = st.Partitions
	stats["entries"] = st.Entries
	stats["frozenPartitions"] = st.Frozen
	stats["baselines"] = s.pipeline.BaselineCount()
	stats["currentMonth"] = s.calendar.CurrentMonth().String()

	metrics.UpdateQueueSize(s.eventQueue.Len(), s.queueSize)
	return stats
}
