package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/okian/skyrank/internal/adapters/metadata"
	"github.com/okian/skyrank/internal/adapters/repository"
	"github.com/okian/skyrank/internal/domain/leaderboard"
	"github.com/okian/skyrank/internal/domain/types"
	"github.com/okian/skyrank/pkg/logger"
	"github.com/okian/skyrank/pkg/metrics"
)

const (
	backendStore  = "store"
	backendLegacy = "legacy"
)

// Query answers rank and slice requests. Leaderboards flagged legacy are
// served by the relational backend when one is configured; everything else
// by the in-memory store.
type Query struct {
	registry *leaderboard.Registry
	modes    leaderboard.GameModes
	store    RankProvider
	legacy   RankProvider
	meta     metadata.Provider
	validate *validator.Validate
	logger   logger.Logger

	maxSliceLimit   int
	defaultUpcoming int
	concurrency     int
}

// QueryConfig carries the request bounds and defaults.
type QueryConfig struct {
	MaxSliceLimit        int
	DefaultUpcoming      int
	MultiRankConcurrency int
}

// NewQuery wires a query service. legacy and meta may be nil.
func NewQuery(registry *leaderboard.Registry, modes leaderboard.GameModes, store, legacy RankProvider, meta metadata.Provider, cfg QueryConfig, l logger.Logger) *Query {
	if meta == nil {
		meta = metadata.NewStatic(nil)
	}
	if cfg.MaxSliceLimit <= 0 || cfg.MaxSliceLimit > repository.MaxSliceLimit {
		cfg.MaxSliceLimit = repository.MaxSliceLimit
	}
	if cfg.MultiRankConcurrency <= 0 {
		cfg.MultiRankConcurrency = 8
	}
	return &Query{
		registry:        registry,
		modes:           modes,
		store:           store,
		legacy:          legacy,
		meta:            meta,
		validate:        newValidator(),
		logger:          l,
		maxSliceLimit:   cfg.MaxSliceLimit,
		defaultUpcoming: min(max(cfg.DefaultUpcoming, 0), repository.MaxUpcoming),
		concurrency:     cfg.MultiRankConcurrency,
	}
}

// provider picks the backend serving def.
func (q *Query) provider(def *leaderboard.Definition) (RankProvider, string) {
	if def.Legacy && q.legacy != nil {
		return q.legacy, backendLegacy
	}
	return q.store, backendStore
}

// Leaderboards lists the registry.
func (q *Query) Leaderboards() []types.Leaderboard {
	defs := q.registry.All()
	out := make([]types.Leaderboard, len(defs))
	for i, d := range defs {
		intervals := make([]string, len(d.IntervalTypes))
		for j, it := range d.IntervalTypes {
			intervals[j] = string(it)
		}
		out[i] = types.Leaderboard{
			ID:                     d.ID,
			Title:                  d.Title,
			ShortTitle:             d.ShortTitle,
			Category:               d.Category,
			DataType:               string(d.DataType),
			MinimumScore:           d.MinimumScore.InexactFloat64(),
			IntervalTypes:          intervals,
			EntityKind:             string(d.EntityKind),
			Order:                  string(d.Order),
			UseIncreaseForInterval: d.UseIncreaseForInterval,
			Legacy:                 d.Legacy,
		}
	}
	return out
}

// GetSlice returns a page of leaderboard id with display metadata.
func (q *Query) GetSlice(ctx context.Context, id string, sq SliceQuery) (*types.Slice, error) {
	const op = "get_slice"
	if err := q.validateSlice(&sq); err != nil {
		metrics.RecordQueryResult(op, "invalid")
		return nil, err
	}
	t, err := q.resolve(id, sq.Interval, sq.GameMode, sq.Removed)
	if err != nil {
		metrics.RecordQueryResult(op, "invalid")
		return nil, err
	}

	p, backend := q.provider(t.def)
	start := time.Now()
	entries, total, err := p.Page(ctx, t.key, t.cfg, sq.Offset, sq.Limit, t.filter)
	if err != nil {
		return nil, q.fail(ctx, op, t, err)
	}
	metrics.RecordQueryLatency(op, backend, float64(time.Since(start).Milliseconds()))
	metrics.RecordQueryResult(op, "ok")

	return &types.Slice{
		Leaderboard: t.def.ID,
		Interval:    t.key.Interval.String(),
		GameMode:    t.key.GameMode,
		Removed:     t.filter.String(),
		Offset:      sq.Offset,
		Limit:       sq.Limit,
		Total:       total,
		Entries:     q.enrich(ctx, op, t.def, entries),
	}, nil
}

// GetRank returns one entity's standing on leaderboard id. An entity with
// no qualifying score is ErrNotFound unless the window is anchored at an
// explicit rank, in which case its rank is types.NotRanked.
func (q *Query) GetRank(ctx context.Context, id string, rq RankQuery) (*types.Position, error) {
	const op = "get_rank"
	if err := q.validateRank(&rq); err != nil {
		metrics.RecordQueryResult(op, "invalid")
		return nil, err
	}
	t, err := q.resolve(id, rq.Interval, rq.GameMode, rq.Removed)
	if err != nil {
		metrics.RecordQueryResult(op, "invalid")
		return nil, err
	}
	entity, err := entityKey(t.def, rq.PlayerUUID, rq.ProfileUUID)
	if err != nil {
		metrics.RecordQueryResult(op, "invalid")
		return nil, err
	}
	return q.rank(ctx, op, t, q.windowFor(&rq, entity))
}

// GetMultipleRanks returns the entity's standing on each of ids. Absent
// standings are nil entries. Every id is validated before any lookup; a
// backend failure fails the whole batch.
func (q *Query) GetMultipleRanks(ctx context.Context, ids []string, rq RankQuery) (map[string]*types.Position, error) {
	const op = "get_multiple_ranks"
	if len(ids) == 0 {
		metrics.RecordQueryResult(op, "invalid")
		return nil, invalid("ids", "is required")
	}
	if err := q.validateRank(&rq); err != nil {
		metrics.RecordQueryResult(op, "invalid")
		return nil, err
	}

	targets := make([]target, 0, len(ids))
	windows := make([]window, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		t, err := q.resolve(id, rq.Interval, rq.GameMode, rq.Removed)
		if err != nil {
			metrics.RecordQueryResult(op, "invalid")
			return nil, err
		}
		entity, err := entityKey(t.def, rq.PlayerUUID, rq.ProfileUUID)
		if err != nil {
			metrics.RecordQueryResult(op, "invalid")
			return nil, err
		}
		targets = append(targets, t)
		windows = append(windows, q.windowFor(&rq, entity))
	}

	results := make([]*types.Position, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.concurrency)
	for i := range targets {
		g.Go(func() error {
			pos, err := q.rank(gctx, op, targets[i], windows[i])
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("%s: %w", targets[i].def.ID, err)
			}
			results[i] = pos
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*types.Position, len(targets))
	for i, t := range targets {
		out[t.def.ID] = results[i]
	}
	return out, nil
}

func (q *Query) rank(ctx context.Context, op string, t target, w window) (*types.Position, error) {
	p, backend := q.provider(t.def)
	start := time.Now()
	win, err := p.Neighbors(ctx, t.key, t.cfg, w.entity, w.upcoming, w.previous, w.atRank, t.filter)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			metrics.RecordQueryResult(op, "not_found")
			return nil, ErrNotFound
		}
		return nil, q.fail(ctx, op, t, err)
	}
	metrics.RecordQueryLatency(op, backend, float64(time.Since(start).Milliseconds()))
	metrics.RecordQueryResult(op, "ok")

	pos := &types.Position{Rank: types.NotRanked}
	if win.Entry != nil {
		score := win.Entry.Score.InexactFloat64()
		pos.Rank = win.Entry.Rank
		pos.Score = &score
	}
	if len(win.Upcoming)+len(win.Previous) > 0 {
		both := q.enrich(ctx, op, t.def, append(append([]repository.Entry{}, win.Upcoming...), win.Previous...))
		pos.Upcoming = both[:len(win.Upcoming)]
		pos.Previous = both[len(win.Upcoming):]
	}
	return pos, nil
}

// enrich converts entries and attaches metadata. Failed lookups leave meta
// null and are logged, never returned.
func (q *Query) enrich(ctx context.Context, op string, def *leaderboard.Definition, entries []repository.Entry) []types.Entry {
	out := make([]types.Entry, len(entries))
	if len(entries) == 0 {
		return out
	}
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}

	meta, err := q.meta.Lookup(ctx, def.EntityKind, keys)
	degraded := 0
	for i, e := range entries {
		out[i] = types.Entry{
			Rank:    e.Rank,
			Key:     e.Key,
			Score:   e.Score.InexactFloat64(),
			Removed: e.Removed,
		}
		if m, ok := meta[e.Key]; ok {
			out[i].Meta = m
		} else {
			degraded++
		}
	}
	if degraded > 0 {
		metrics.RecordMetadataDegraded(op, degraded)
		fields := []logger.Field{
			logger.String("leaderboard", def.ID),
			logger.Int("degraded", degraded),
		}
		if err != nil {
			fields = append(fields, logger.Error(err))
		}
		q.logger.Warn(ctx, "metadata lookup degraded", fields...)
	}
	return out
}

func (q *Query) fail(ctx context.Context, op string, t target, err error) error {
	err = translate(err)
	switch {
	case errors.Is(err, ErrValidation):
		metrics.RecordQueryResult(op, "invalid")
	case errors.Is(err, ErrUnavailable):
		metrics.RecordQueryResult(op, "unavailable")
		metrics.RecordErrorByComponent("query", "unavailable")
		q.logger.Error(ctx, "rank backend unavailable",
			logger.String("partition", t.key.String()),
			logger.String("filter", t.filter.String()),
			logger.Error(err),
		)
	default:
		metrics.RecordQueryResult(op, "cancelled")
	}
	return err
}
