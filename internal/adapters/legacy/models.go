package legacy

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/okian/skyrank/internal/adapters/repository"
)

// entryRow is one row of the aggregate table the service used before the
// in-memory store existed.
type entryRow struct {
	bun.BaseModel `bun:"table:leaderboard_entries,alias:le"`

	LeaderboardID string          `bun:"leaderboard_id,pk"`
	IntervalKey   string          `bun:"interval_key,pk"`
	GameMode      string          `bun:"game_mode,pk"`
	EntityKey     string          `bun:"entity_key,pk"`
	Score         decimal.Decimal `bun:"score,type:numeric,notnull"`
	RemovedAt     *time.Time      `bun:"removed_at,nullzero"`
	UpdatedAt     time.Time       `bun:"updated_at,notnull"`

	RowRank   int `bun:"row_rank,scanonly"`
	PageTotal int `bun:"page_total,scanonly"`
}

func (r *entryRow) entry() repository.Entry {
	return repository.Entry{
		Rank:      r.RowRank,
		Key:       r.EntityKey,
		Score:     r.Score,
		Removed:   r.RemovedAt != nil,
		UpdatedAt: r.UpdatedAt,
	}
}

func entries(rows []entryRow) []repository.Entry {
	out := make([]repository.Entry, len(rows))
	for i := range rows {
		out[i] = rows[i].entry()
	}
	return out
}
