package service

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/okian/skyrank/internal/adapters/repository"
	"github.com/okian/skyrank/internal/domain/leaderboard"
	"github.com/okian/skyrank/pkg/logger"
)

// RankProvider answers rank queries for one backend. The in-memory store
// and the legacy relational adapter both implement it with identical
// ordering and result shapes.
type RankProvider interface {
	Slice(ctx context.Context, key leaderboard.PartitionKey, cfg repository.PartitionConfig, offset, limit int, f leaderboard.RemovedFilter) ([]repository.Entry, error)
	Count(ctx context.Context, key leaderboard.PartitionKey, cfg repository.PartitionConfig, f leaderboard.RemovedFilter) (int, error)
	// Page returns a slice together with the matching total, both from the
	// same state.
	Page(ctx context.Context, key leaderboard.PartitionKey, cfg repository.PartitionConfig, offset, limit int, f leaderboard.RemovedFilter) ([]repository.Entry, int, error)
	Neighbors(ctx context.Context, key leaderboard.PartitionKey, cfg repository.PartitionConfig, entity string, upcoming, previous, atRank int, f leaderboard.RemovedFilter) (repository.Window, error)
}

// Warmer fills a store partition from another source.
type Warmer interface {
	Warm(ctx context.Context, p *repository.Partition) (int, error)
}

// storeProvider serves reads from the in-memory store, warming partitions
// on first use when a Warmer is set.
type storeProvider struct {
	store    *repository.Store
	warmer   Warmer
	calendar *leaderboard.Calendar
	group    singleflight.Group
	logger   logger.Logger
}

func newStoreProvider(store *repository.Store, warmer Warmer, calendar *leaderboard.Calendar, l logger.Logger) *storeProvider {
	return &storeProvider{store: store, warmer: warmer, calendar: calendar, logger: l}
}

// partition returns the partition for key, or nil when it does not exist
// and nothing can warm it.
func (sp *storeProvider) partition(ctx context.Context, key leaderboard.PartitionKey, cfg repository.PartitionConfig) *repository.Partition {
	future := !key.Interval.IsCurrent() && sp.calendar.CurrentMonth().Before(key.Interval)
	if sp.warmer == nil || future {
		p, _ := sp.store.Get(key)
		return p
	}

	p := sp.store.Open(key, cfg)
	if p.Loaded() {
		return p
	}
	// Concurrent readers of a cold partition share one warm-up. It runs
	// detached from the first caller's cancellation.
	_, err, _ := sp.group.Do(key.String(), func() (any, error) {
		if p.Loaded() {
			return nil, nil
		}
		start := time.Now()
		n, err := sp.warmer.Warm(context.WithoutCancel(ctx), p)
		if err != nil {
			return nil, err
		}
		if !key.Interval.IsCurrent() && key.Interval.Before(sp.calendar.CurrentMonth()) {
			p.Freeze()
		}
		sp.logger.Info(ctx, "partition warmed",
			logger.String("partition", key.String()),
			logger.Int("entries", n),
			logger.Duration("took", time.Since(start)),
		)
		return nil, nil
	})
	if err != nil {
		sp.logger.Warn(ctx, "partition warm-up failed, serving in-memory entries",
			logger.String("partition", key.String()),
			logger.Error(err),
		)
	}
	return p
}

func (sp *storeProvider) Slice(ctx context.Context, key leaderboard.PartitionKey, cfg repository.PartitionConfig, offset, limit int, f leaderboard.RemovedFilter) ([]repository.Entry, error) {
	p := sp.partition(ctx, key, cfg)
	if p == nil {
		if offset < 0 {
			return nil, repository.ErrInvalidOffset
		}
		if limit < 0 || limit > repository.MaxSliceLimit {
			return nil, repository.ErrInvalidLimit
		}
		return []repository.Entry{}, nil
	}
	return p.Slice(offset, limit, f)
}

func (sp *storeProvider) Count(ctx context.Context, key leaderboard.PartitionKey, cfg repository.PartitionConfig, f leaderboard.RemovedFilter) (int, error) {
	p := sp.partition(ctx, key, cfg)
	if p == nil {
		return 0, nil
	}
	return p.Count(f), nil
}

func (sp *storeProvider) Page(ctx context.Context, key leaderboard.PartitionKey, cfg repository.PartitionConfig, offset, limit int, f leaderboard.RemovedFilter) ([]repository.Entry, int, error) {
	p := sp.partition(ctx, key, cfg)
	if p == nil {
		entries, err := sp.Slice(ctx, key, cfg, offset, limit, f)
		return entries, 0, err
	}
	return p.Page(offset, limit, f)
}

func (sp *storeProvider) Neighbors(ctx context.Context, key leaderboard.PartitionKey, cfg repository.PartitionConfig, entity string, upcoming, previous, atRank int, f leaderboard.RemovedFilter) (repository.Window, error) {
	p := sp.partition(ctx, key, cfg)
	if p == nil {
		if atRank < 0 {
			return repository.Window{}, repository.ErrNotFound
		}
		return repository.Window{}, nil
	}
	return p.Neighbors(entity, upcoming, previous, atRank, f)
}

// translate maps backend errors onto the service's error kinds.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrInvalidOffset):
		return invalid("offset", "must be at least 0")
	case errors.Is(err, repository.ErrInvalidLimit):
		return invalid("limit", "must be between 0 and %d", repository.MaxSliceLimit)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return errors.Join(ErrUnavailable, err)
	}
}
