package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okian/skyrank/internal/adapters/metadata"
	"github.com/okian/skyrank/internal/adapters/repository"
	"github.com/okian/skyrank/internal/domain/leaderboard"
	"github.com/okian/skyrank/internal/domain/model"
	"github.com/okian/skyrank/internal/domain/scoring"
	"github.com/okian/skyrank/pkg/logger"
)

const (
	playerA = "11111111-1111-1111-1111-111111111111"
	playerB = "22222222-2222-2222-2222-222222222222"
	playerC = "33333333-3333-3333-3333-333333333333"
	profile = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
)

// clock is a settable time source for the calendar.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *clock { return &clock{t: t} }

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// monthStart is the first day of Skyblock year 300, month 5, plus an hour.
func monthStart() time.Time {
	return leaderboard.SkyblockDate{Year: 300, Month: 5, Day: 1}.Time().Add(time.Hour)
}

func testDefinitions() []leaderboard.Definition {
	return []leaderboard.Definition{
		{
			ID:                     "combat-xp",
			Title:                  "Combat XP",
			Category:               "skills",
			DataType:               leaderboard.Integer,
			IntervalTypes:          []leaderboard.IntervalType{leaderboard.IntervalCurrent, leaderboard.IntervalMonthly},
			EntityKind:             model.KindMember,
			UseIncreaseForInterval: true,
		},
		{
			ID:            "fastest-run",
			Title:         "Fastest Run",
			Category:      "dungeons",
			DataType:      leaderboard.Decimal,
			MinimumScore:  decimal.NewFromInt(1),
			IntervalTypes: []leaderboard.IntervalType{leaderboard.IntervalCurrent, leaderboard.IntervalMonthly},
			EntityKind:    model.KindMember,
			Order:         leaderboard.Asc,
		},
		{
			ID:            "bank-balance",
			Title:         "Bank Balance",
			Category:      "profile",
			DataType:      leaderboard.Decimal,
			IntervalTypes: []leaderboard.IntervalType{leaderboard.IntervalCurrent},
			EntityKind:    model.KindProfile,
		},
	}
}

func testFuncs() map[string]scoring.ScoreFunc {
	return map[string]scoring.ScoreFunc{
		"combat-xp": func(_ *scoring.Config, s *model.Snapshot) (float64, bool) {
			if s.Member == nil {
				return 0, false
			}
			v, ok := s.Member.Skills["combat"]
			return v, ok
		},
		"fastest-run": func(_ *scoring.Config, s *model.Snapshot) (float64, bool) {
			if s.Member == nil {
				return 0, false
			}
			v, ok := s.Member.Collections["run"]
			return v, ok
		},
		"bank-balance": func(_ *scoring.Config, s *model.Snapshot) (float64, bool) {
			if s.Profile == nil || s.Profile.BankBalance == nil {
				return 0, false
			}
			return *s.Profile.BankBalance, true
		},
	}
}

func testRegistry(extra ...leaderboard.Definition) *leaderboard.Registry {
	r := leaderboard.NewRegistry()
	r.MustRegister(testDefinitions()...)
	r.MustRegister(extra...)
	return r
}

func member(player string, combat float64) model.Snapshot {
	return model.Snapshot{
		Kind:        model.KindMember,
		PlayerUUID:  player,
		ProfileUUID: profile,
		Member:      &model.MemberState{Skills: map[string]float64{"combat": combat}},
	}
}

func change(id string, snap model.Snapshot) model.EntityChange { //nolint:gocritic // hugeParam: test helper
	return model.EntityChange{ChangeID: id, Snapshot: snap}
}

func key(player string) string {
	k, err := model.MemberKey(player, profile)
	if err != nil {
		panic(err)
	}
	return k
}

// fixture is a pipeline, roller and query service over one store.
type fixture struct {
	clock    *clock
	calendar *leaderboard.Calendar
	registry *leaderboard.Registry
	store    *repository.Store
	roller   *Roller
	pipeline *Pipeline
	query    *Query
	cancel   context.CancelFunc
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	registry *leaderboard.Registry
	funcs    map[string]scoring.ScoreFunc
	modes    []string
	legacy   RankProvider
	warmer   Warmer
	meta     metadata.Provider
	query    QueryConfig
}

func withRegistry(r *leaderboard.Registry) fixtureOption {
	return func(c *fixtureConfig) { c.registry = r }
}

func withFuncs(funcs map[string]scoring.ScoreFunc) fixtureOption {
	return func(c *fixtureConfig) {
		for id, fn := range funcs {
			c.funcs[id] = fn
		}
	}
}

func withModes(modes ...string) fixtureOption {
	return func(c *fixtureConfig) { c.modes = modes }
}

func withLegacyProvider(p RankProvider) fixtureOption {
	return func(c *fixtureConfig) { c.legacy = p }
}

func withWarmer(w Warmer) fixtureOption {
	return func(c *fixtureConfig) { c.warmer = w }
}

func withMeta(m metadata.Provider) fixtureOption {
	return func(c *fixtureConfig) { c.meta = m }
}

func withQueryConfig(q QueryConfig) fixtureOption {
	return func(c *fixtureConfig) { c.query = q }
}

func newFixture(opts ...fixtureOption) *fixture {
	cfg := fixtureConfig{
		funcs: testFuncs(),
		query: QueryConfig{MaxSliceLimit: 100, DefaultUpcoming: 2, MultiRankConcurrency: 2},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.registry == nil {
		cfg.registry = testRegistry()
	}
	cfg.registry.Seal()

	ctx, cancel := context.WithCancel(context.Background())
	clk := newClock(monthStart())
	cal := leaderboard.NewCalendar(clk.now)
	store := repository.NewStore(ctx)
	modes := leaderboard.NewGameModes(cfg.modes)
	roller := NewRoller(cfg.registry, store, cal, time.Hour, logger.Nop())
	extractor := scoring.NewExtractor(scoring.WithFuncs(cfg.funcs))

	return &fixture{
		clock:    clk,
		calendar: cal,
		registry: cfg.registry,
		store:    store,
		roller:   roller,
		pipeline: NewPipeline(cfg.registry, extractor, store, modes, roller, logger.Nop()),
		query: NewQuery(cfg.registry, modes,
			newStoreProvider(store, cfg.warmer, cal, logger.Nop()),
			cfg.legacy, cfg.meta, cfg.query, logger.Nop()),
		cancel: cancel,
	}
}

func (f *fixture) close() {
	_ = f.store.Close()
	f.cancel()
}

func (f *fixture) apply(ctx context.Context, changes ...model.EntityChange) []Report {
	reps := make([]Report, len(changes))
	for i, c := range changes {
		reps[i] = f.pipeline.OnEntityChanged(ctx, c)
	}
	return reps
}

func (f *fixture) partition(id string, iv leaderboard.Interval, mode string) (*repository.Partition, bool) {
	return f.store.Get(leaderboard.PartitionKey{Leaderboard: id, Interval: iv, GameMode: mode})
}

func intp(v int) *int { return &v }
