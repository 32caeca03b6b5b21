package legacy

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/okian/skyrank/internal/adapters/repository"
	"github.com/okian/skyrank/internal/domain/leaderboard"
	"github.com/okian/skyrank/pkg/metrics"
)

const defaultPageSize = 5000

// Loader repopulates store partitions from the aggregate table.
type Loader struct {
	db       bun.IDB
	pageSize int
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithPageSize sets how many rows each warm-up query fetches.
func WithPageSize(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.pageSize = n
		}
	}
}

// NewLoader creates a loader over db.
func NewLoader(db bun.IDB, opts ...LoaderOption) *Loader {
	l := &Loader{db: db, pageSize: defaultPageSize}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Warm seeds p with every row of its partition and marks it loaded. Rows
// for keys the partition already holds are skipped, so concurrent writes
// win over stale rows. Returns the number of seeded entries.
func (l *Loader) Warm(ctx context.Context, p *repository.Partition) (int, error) {
	start := time.Now()
	key := p.Key()
	seeded := 0
	after := ""
	for {
		var rows []entryRow
		if err := l.pageQuery(&rows, key, after).Scan(ctx); err != nil {
			metrics.RecordStoreWarmup("error", float64(time.Since(start).Milliseconds()))
			return seeded, wrap("legacy.Warm", err)
		}
		for i := range rows {
			if p.Seed(rows[i].EntityKey, rows[i].Score, rows[i].RemovedAt != nil, rows[i].UpdatedAt) {
				seeded++
			}
		}
		if len(rows) < l.pageSize {
			break
		}
		after = rows[len(rows)-1].EntityKey
	}
	p.MarkLoaded()
	metrics.RecordStoreWarmup("ok", float64(time.Since(start).Milliseconds()))
	return seeded, nil
}

// pageQuery reads the page of keys after `after`, in key order.
func (l *Loader) pageQuery(rows *[]entryRow, key leaderboard.PartitionKey, after string) *bun.SelectQuery {
	return l.db.NewSelect().
		Model(rows).
		Where("le.leaderboard_id = ?", key.Leaderboard).
		Where("le.interval_key = ?", key.Interval.String()).
		Where("le.game_mode = ?", key.GameMode).
		Where("le.entity_key > ?", after).
		OrderExpr("le.entity_key ASC").
		Limit(l.pageSize)
}

