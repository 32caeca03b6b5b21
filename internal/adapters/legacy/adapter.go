// Package legacy reads leaderboards from the relational aggregate table.
// It answers the same questions as the in-memory store, with the same
// ordering and result shapes, and is read-only.
package legacy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/okian/skyrank/internal/adapters/repository"
	"github.com/okian/skyrank/internal/domain/leaderboard"
	"github.com/okian/skyrank/pkg/metrics"
)

const backend = "legacy"

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*bun.DB, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("legacy.Open: %w: %w", ErrUnavailable, err)
	}
	return db, nil
}

// Adapter serves rank queries from the aggregate table.
type Adapter struct {
	db bun.IDB
}

// NewAdapter wraps an open database handle.
func NewAdapter(db bun.IDB) *Adapter {
	return &Adapter{db: db}
}

// Slice returns up to limit entries matching f after offset, ordered like
// the in-memory store.
func (a *Adapter) Slice(ctx context.Context, key leaderboard.PartitionKey, cfg repository.PartitionConfig, offset, limit int, f leaderboard.RemovedFilter) ([]repository.Entry, error) {
	if offset < 0 {
		return nil, repository.ErrInvalidOffset
	}
	if limit < 0 || limit > repository.MaxSliceLimit {
		return nil, repository.ErrInvalidLimit
	}
	if limit == 0 {
		return []repository.Entry{}, nil
	}
	defer observe("slice", time.Now())

	var rows []entryRow
	if err := a.sliceQuery(&rows, key, cfg, offset, limit, f).Scan(ctx); err != nil {
		return nil, wrap("legacy.Slice", err)
	}
	out := entries(rows)
	for i := range out {
		out[i].Rank = offset + i + 1
	}
	return out, nil
}

// Page returns a slice and the number of entries matching f from one
// statement, so both see the same snapshot. A page past the end carries no
// total and falls back to Count.
func (a *Adapter) Page(ctx context.Context, key leaderboard.PartitionKey, cfg repository.PartitionConfig, offset, limit int, f leaderboard.RemovedFilter) ([]repository.Entry, int, error) {
	if offset < 0 {
		return nil, 0, repository.ErrInvalidOffset
	}
	if limit < 0 || limit > repository.MaxSliceLimit {
		return nil, 0, repository.ErrInvalidLimit
	}
	if limit == 0 {
		n, err := a.Count(ctx, key, cfg, f)
		return []repository.Entry{}, n, err
	}
	defer observe("page", time.Now())

	var rows []entryRow
	if err := a.pageQuery(&rows, key, cfg, offset, limit, f).Scan(ctx); err != nil {
		return nil, 0, wrap("legacy.Page", err)
	}
	if len(rows) == 0 {
		n, err := a.Count(ctx, key, cfg, f)
		return []repository.Entry{}, n, err
	}
	out := entries(rows)
	for i := range out {
		out[i].Rank = offset + i + 1
	}
	return out, rows[0].PageTotal, nil
}

// RankOf returns key's 1-based rank among entries matching f.
func (a *Adapter) RankOf(ctx context.Context, key leaderboard.PartitionKey, cfg repository.PartitionConfig, entity string, f leaderboard.RemovedFilter) (repository.Entry, error) {
	defer observe("rank", time.Now())

	var row entryRow
	if err := a.rankQuery(key, cfg, entity, f).Scan(ctx, &row); err != nil {
		return repository.Entry{}, wrap("legacy.RankOf", err)
	}
	return row.entry(), nil
}

// Neighbors returns the window around entity, or around atRank when
// atRank >= 0, with the same bounds as the in-memory store.
func (a *Adapter) Neighbors(ctx context.Context, key leaderboard.PartitionKey, cfg repository.PartitionConfig, entity string, upcoming, previous, atRank int, f leaderboard.RemovedFilter) (repository.Window, error) {
	upcoming = max(0, min(upcoming, repository.MaxUpcoming))
	previous = max(0, min(previous, repository.MaxPrevious))

	var w repository.Window
	self, err := a.RankOf(ctx, key, cfg, entity, f)
	switch {
	case err == nil:
		w.Entry = &self
	case atRank < 0 || !errors.Is(err, repository.ErrNotFound):
		return repository.Window{}, err
	}

	anchor := atRank
	if anchor < 0 {
		anchor = self.Rank
	}

	defer observe("neighbors", time.Now())
	if lo, hi := max(1, anchor-upcoming), anchor-1; upcoming > 0 && lo <= hi {
		if w.Upcoming, err = a.between(ctx, key, cfg, lo, hi, f); err != nil {
			return repository.Window{}, err
		}
	}
	if lo, hi := max(1, anchor+1), anchor+previous; previous > 0 && lo <= hi {
		if w.Previous, err = a.between(ctx, key, cfg, lo, hi, f); err != nil {
			return repository.Window{}, err
		}
	}
	return w, nil
}

// Count returns the number of entries matching f.
func (a *Adapter) Count(ctx context.Context, key leaderboard.PartitionKey, cfg repository.PartitionConfig, f leaderboard.RemovedFilter) (int, error) {
	n, err := a.partitionQuery(a.db.NewSelect().Model((*entryRow)(nil)), key, cfg, f).Count(ctx)
	if err != nil {
		return 0, wrap("legacy.Count", err)
	}
	return n, nil
}

func (a *Adapter) between(ctx context.Context, key leaderboard.PartitionKey, cfg repository.PartitionConfig, lo, hi int, f leaderboard.RemovedFilter) ([]repository.Entry, error) {
	var rows []entryRow
	if err := a.betweenQuery(key, cfg, lo, hi, f).Scan(ctx, &rows); err != nil {
		return nil, wrap("legacy.Neighbors", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return entries(rows), nil
}

func (a *Adapter) sliceQuery(rows *[]entryRow, key leaderboard.PartitionKey, cfg repository.PartitionConfig, offset, limit int, f leaderboard.RemovedFilter) *bun.SelectQuery {
	return a.partitionQuery(a.db.NewSelect().Model(rows), key, cfg, f).
		OrderExpr(orderExpr(cfg.Order)).
		Offset(offset).
		Limit(limit)
}

func (a *Adapter) pageQuery(rows *[]entryRow, key leaderboard.PartitionKey, cfg repository.PartitionConfig, offset, limit int, f leaderboard.RemovedFilter) *bun.SelectQuery {
	return a.sliceQuery(rows, key, cfg, offset, limit, f).
		ColumnExpr("le.*").
		ColumnExpr("COUNT(*) OVER () AS page_total")
}

func (a *Adapter) rankQuery(key leaderboard.PartitionKey, cfg repository.PartitionConfig, entity string, f leaderboard.RemovedFilter) *bun.SelectQuery {
	return a.db.NewSelect().
		ColumnExpr("ranked.*").
		TableExpr("(?) AS ranked", a.rankedQuery(key, cfg, f)).
		Where("ranked.entity_key = ?", entity).
		Limit(1)
}

func (a *Adapter) betweenQuery(key leaderboard.PartitionKey, cfg repository.PartitionConfig, lo, hi int, f leaderboard.RemovedFilter) *bun.SelectQuery {
	return a.db.NewSelect().
		ColumnExpr("ranked.*").
		TableExpr("(?) AS ranked", a.rankedQuery(key, cfg, f)).
		Where("ranked.row_rank BETWEEN ? AND ?", lo, hi).
		OrderExpr("ranked.row_rank ASC")
}

// rankedQuery numbers every qualifying row of the partition in rank order.
func (a *Adapter) rankedQuery(key leaderboard.PartitionKey, cfg repository.PartitionConfig, f leaderboard.RemovedFilter) *bun.SelectQuery {
	q := a.db.NewSelect().
		Model((*entryRow)(nil)).
		Column("leaderboard_id", "interval_key", "game_mode", "entity_key", "score", "removed_at", "updated_at").
		ColumnExpr("ROW_NUMBER() OVER (ORDER BY " + orderExpr(cfg.Order) + ") AS row_rank")
	return a.partitionQuery(q, key, cfg, f)
}

func (a *Adapter) partitionQuery(q *bun.SelectQuery, key leaderboard.PartitionKey, cfg repository.PartitionConfig, f leaderboard.RemovedFilter) *bun.SelectQuery {
	q = q.Where("le.leaderboard_id = ?", key.Leaderboard).
		Where("le.interval_key = ?", key.Interval.String()).
		Where("le.game_mode = ?", key.GameMode).
		Where("le.score >= ?", cfg.MinimumScore)
	switch f {
	case leaderboard.NotRemoved:
		q = q.Where("le.removed_at IS NULL")
	case leaderboard.Removed:
		q = q.Where("le.removed_at IS NOT NULL")
	}
	return q
}

func orderExpr(o leaderboard.Order) string {
	if o == leaderboard.Asc {
		return "score ASC, entity_key ASC"
	}
	return "score DESC, entity_key ASC"
}

func wrap(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

func observe(op string, start time.Time) {
	metrics.RecordQueryLatency(op, backend, float64(time.Since(start).Milliseconds()))
}
