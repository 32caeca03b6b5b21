package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/shopspring/decimal"

	"github.com/okian/skyrank/internal/adapters/repository"
	"github.com/okian/skyrank/internal/domain/leaderboard"
	"github.com/okian/skyrank/internal/domain/model"
	"github.com/okian/skyrank/internal/domain/scoring"
	"github.com/okian/skyrank/pkg/logger"
	"github.com/okian/skyrank/pkg/metrics"
)

// Report summarizes one applied entity change.
type Report struct {
	ChangeID string
	Key      string
	// Applied counts leaderboards the entity was written to, Removed those
	// it was removed from and Failed those left untouched after an error.
	Applied int
	Removed int
	Failed  int
	// Err is set when the change itself was rejected.
	Err error
}

// baselineKey identifies an entity on one leaderboard.
type baselineKey struct {
	leaderboard string
	entity      string
}

// baseline tracks the absolute value an entity's monthly increase is
// measured from.
type baseline struct {
	month leaderboard.Interval
	start decimal.Decimal
	last  decimal.Decimal
}

// Pipeline applies entity changes to the ranked store. It is the only
// writer of store partitions.
type Pipeline struct {
	registry  *leaderboard.Registry
	extractor *scoring.Extractor
	store     *repository.Store
	modes     leaderboard.GameModes
	roller    *Roller
	now       func() time.Time
	logger    logger.Logger

	baselines *xsync.MapOf[baselineKey, baseline]
}

// NewPipeline wires a pipeline.
func NewPipeline(registry *leaderboard.Registry, extractor *scoring.Extractor, store *repository.Store, modes leaderboard.GameModes, roller *Roller, l logger.Logger) *Pipeline {
	return &Pipeline{
		registry:  registry,
		extractor: extractor,
		store:     store,
		modes:     modes,
		roller:    roller,
		now:       roller.calendar.Now,
		logger:    l,
		baselines: xsync.NewMapOf[baselineKey, baseline](),
	}
}

// OnEntityChanged scores the snapshot for every leaderboard of its kind
// and updates the live partitions. A leaderboard whose extraction or write
// fails keeps the entity's previous value; the others are still updated.
func (p *Pipeline) OnEntityChanged(ctx context.Context, change model.EntityChange) Report { //nolint:gocritic // hugeParam: mirrors the queue's value semantics
	start := time.Now()
	defer func() {
		metrics.RecordSyncLatency(float64(time.Since(start).Milliseconds()))
	}()

	rep := Report{ChangeID: change.ChangeID}
	snap := &change.Snapshot
	key, err := snap.Key()
	if err != nil {
		metrics.RecordSyncEvent("invalid")
		rep.Err = fmt.Errorf("service.OnEntityChanged: %w", err)
		return rep
	}
	rep.Key = key

	at := change.ReceivedAt
	if at.IsZero() {
		at = p.now()
	}
	removed := snap.Removed()
	mode := leaderboard.NormalizeGameMode(snap.GameMode)

	for _, def := range p.registry.ForKind(snap.Kind) {
		res, err := p.extractor.Extract(def, snap)
		if err != nil {
			rep.Failed++
			metrics.RecordExtractionFailure(def.ID)
			p.logger.Warn(ctx, "score extraction failed",
				logger.String("leaderboard", def.ID),
				logger.String("entity", key),
				logger.String("changeID", change.ChangeID),
				logger.Error(err),
			)
			continue
		}

		if err := p.apply(def, key, mode, res, removed, at); err != nil {
			rep.Failed++
			metrics.RecordErrorByComponent("sync", "write")
			p.logger.Error(ctx, "partition write failed",
				logger.String("leaderboard", def.ID),
				logger.String("entity", key),
				logger.Error(err),
			)
			continue
		}
		if res.Present {
			rep.Applied++
		} else {
			rep.Removed++
		}
	}

	switch {
	case rep.Failed == 0:
		metrics.RecordSyncEvent("ok")
	case rep.Applied+rep.Removed == 0:
		metrics.RecordSyncEvent("failed")
	default:
		metrics.RecordSyncEvent("partial")
	}
	return rep
}

// apply writes one leaderboard's result to its current and open month
// partitions.
func (p *Pipeline) apply(def *leaderboard.Definition, key, mode string, res scoring.Result, removed bool, at time.Time) error {
	cfg := repository.ConfigFor(def)
	var errs []error

	if def.Supports(leaderboard.IntervalCurrent) {
		errs = append(errs, p.write(cfg, def.ID, leaderboard.Current, key, mode, res, res.Value, removed, at))
	}
	if def.Supports(leaderboard.IntervalMonthly) {
		errs = append(errs, p.roller.withMonth(def.ID, func(month leaderboard.Interval) error {
			score := res.Value
			if res.Present && def.UseIncreaseForInterval {
				score = p.increase(def.ID, key, month, res.Value)
			}
			return p.write(cfg, def.ID, month, key, mode, res, score, removed, at)
		}))
	}
	return errors.Join(errs...)
}

// write updates the all-modes partition and the entity's mode partition,
// and removes the entity from every other mode's partition.
func (p *Pipeline) write(cfg repository.PartitionConfig, id string, iv leaderboard.Interval, key, mode string, res scoring.Result, score decimal.Decimal, removed bool, at time.Time) error {
	var errs []error
	targets := []string{""}
	if p.modes.Has(mode) {
		targets = append(targets, mode)
	}
	for _, m := range targets {
		pk := leaderboard.PartitionKey{Leaderboard: id, Interval: iv, GameMode: m}
		if !res.Present {
			if part, ok := p.store.Get(pk); ok {
				errs = append(errs, part.Remove(key))
			}
			continue
		}
		errs = append(errs, p.store.Open(pk, cfg).Upsert(key, score, removed, at))
	}
	for _, m := range p.modes.List() {
		if m == mode {
			continue
		}
		pk := leaderboard.PartitionKey{Leaderboard: id, Interval: iv, GameMode: m}
		if part, ok := p.store.Get(pk); ok {
			errs = append(errs, part.Remove(key))
		}
	}
	return errors.Join(errs...)
}

// increase returns the growth of value since the entity's baseline for
// month. The first observation in a month starts from the last value seen
// in an earlier month, or from value itself when the entity is new.
func (p *Pipeline) increase(id, key string, month leaderboard.Interval, value decimal.Decimal) decimal.Decimal {
	b, _ := p.baselines.Compute(baselineKey{leaderboard: id, entity: key}, func(old baseline, loaded bool) (baseline, bool) {
		switch {
		case !loaded:
			return baseline{month: month, start: value, last: value}, false
		case old.month == month:
			old.last = value
			return old, false
		case old.month.Before(month):
			return baseline{month: month, start: old.last, last: value}, false
		default:
			// A late change for an older month does not move the baseline.
			return old, false
		}
	})
	if b.month != month {
		return decimal.Zero
	}
	inc := value.Sub(b.start)
	if inc.IsNegative() {
		return decimal.Zero
	}
	return inc
}

// BaselineCount returns the number of tracked monthly baselines.
func (p *Pipeline) BaselineCount() int {
	return p.baselines.Size()
}
