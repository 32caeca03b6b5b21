//go:build integration

package legacy

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"

	"github.com/okian/skyrank/internal/adapters/repository"
	"github.com/okian/skyrank/internal/domain/leaderboard"
)

func setupPostgres(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()

	pg, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("skyrank"),
		postgres.WithUsername("skyrank"),
		postgres.WithPassword("skyrank"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := pg.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.NewCreateTable().Model((*entryRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	return db
}

func TestAdapterMatchesStore(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	key := leaderboard.PartitionKey{Leaderboard: "slayer-wolf", Interval: leaderboard.Current}
	cfg := repository.PartitionConfig{Order: leaderboard.Desc, MinimumScore: decimal.NewFromInt(1)}

	store := repository.NewStore(ctx)
	defer store.Close()
	p := store.Open(key, cfg)

	now := time.Now().UTC().Truncate(time.Second)
	var rows []entryRow
	for i := 0; i < 60; i++ {
		row := entryRow{
			LeaderboardID: key.Leaderboard,
			IntervalKey:   key.Interval.String(),
			GameMode:      key.GameMode,
			EntityKey:     fmt.Sprintf("p%02d:q", i),
			Score:         decimal.NewFromInt(int64(i % 17)),
			UpdatedAt:     now,
		}
		if i%9 == 0 {
			removed := now
			row.RemovedAt = &removed
		}
		rows = append(rows, row)
		if err := p.Upsert(row.EntityKey, row.Score, row.RemovedAt != nil, now); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	if _, err := db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		t.Fatalf("failed to insert rows: %v", err)
	}

	a := NewAdapter(db)
	opts := cmp.Options{
		cmpopts.IgnoreFields(repository.Entry{}, "UpdatedAt"),
		cmp.Comparer(func(x, y decimal.Decimal) bool { return x.Equal(y) }),
	}

	for _, f := range []leaderboard.RemovedFilter{leaderboard.NotRemoved, leaderboard.Removed, leaderboard.All} {
		t.Run(f.String(), func(t *testing.T) {
			want, err := p.Slice(5, 20, f)
			if err != nil {
				t.Fatalf("store slice: %v", err)
			}
			got, err := a.Slice(ctx, key, cfg, 5, 20, f)
			if err != nil {
				t.Fatalf("legacy slice: %v", err)
			}
			if diff := cmp.Diff(want, got, opts); diff != "" {
				t.Errorf("slice mismatch (-store +legacy):\n%s", diff)
			}

			wantN, err := a.Count(ctx, key, cfg, f)
			if err != nil {
				t.Fatalf("legacy count: %v", err)
			}
			if n := p.Count(f); n != wantN {
				t.Errorf("count = %d, legacy %d", n, wantN)
			}

			for _, off := range []int{5, 1000} {
				wantPage, wantTotal, _ := p.Page(off, 20, f)
				gotPage, gotTotal, err := a.Page(ctx, key, cfg, off, 20, f)
				if err != nil {
					t.Fatalf("legacy page: %v", err)
				}
				if diff := cmp.Diff(wantPage, gotPage, opts); diff != "" {
					t.Errorf("page %d mismatch (-store +legacy):\n%s", off, diff)
				}
				if wantTotal != gotTotal {
					t.Errorf("page %d total = %d, legacy %d", off, wantTotal, gotTotal)
				}
			}

			for _, r := range rows {
				sw, serr := p.Neighbors(r.EntityKey, 10, 3, -1, f)
				lw, lerr := a.Neighbors(ctx, key, cfg, r.EntityKey, 10, 3, -1, f)
				if (serr == nil) != (lerr == nil) {
					t.Fatalf("%s: store err %v, legacy err %v", r.EntityKey, serr, lerr)
				}
				if diff := cmp.Diff(sw, lw, opts); diff != "" {
					t.Errorf("%s neighbors mismatch (-store +legacy):\n%s", r.EntityKey, diff)
				}
			}
		})
	}

	t.Run("warm", func(t *testing.T) {
		fresh := repository.NewStore(ctx)
		defer fresh.Close()
		wp := fresh.Open(key, cfg)

		n, err := NewLoader(db, WithPageSize(7)).Warm(ctx, wp)
		if err != nil {
			t.Fatalf("warm: %v", err)
		}
		if !wp.Loaded() {
			t.Error("partition not marked loaded")
		}
		if n != p.Count(leaderboard.All) {
			t.Errorf("seeded %d, want %d", n, p.Count(leaderboard.All))
		}
		want, _ := p.Slice(0, 100, leaderboard.All)
		got, _ := wp.Slice(0, 100, leaderboard.All)
		if diff := cmp.Diff(want, got, opts); diff != "" {
			t.Errorf("warm mismatch (-store +warmed):\n%s", diff)
		}
	})
}
