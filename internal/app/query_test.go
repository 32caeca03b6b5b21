package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/skyrank/internal/adapters/metadata"
	"github.com/okian/skyrank/internal/adapters/repository"
	"github.com/okian/skyrank/internal/domain/leaderboard"
	"github.com/okian/skyrank/internal/domain/model"
	"github.com/okian/skyrank/internal/domain/types"
)

// failingMeta fails every lookup.
type failingMeta struct{}

func (failingMeta) Lookup(context.Context, model.EntityKind, []string) (map[string]map[string]string, error) {
	return nil, metadata.ErrLookup
}

// downProvider is a rank backend that is always unavailable.
type downProvider struct{ calls atomic.Int32 }

var errDown = errors.New("connection refused")

func (d *downProvider) Slice(context.Context, leaderboard.PartitionKey, repository.PartitionConfig, int, int, leaderboard.RemovedFilter) ([]repository.Entry, error) {
	d.calls.Add(1)
	return nil, errDown
}

func (d *downProvider) Count(context.Context, leaderboard.PartitionKey, repository.PartitionConfig, leaderboard.RemovedFilter) (int, error) {
	d.calls.Add(1)
	return 0, errDown
}

func (d *downProvider) Page(context.Context, leaderboard.PartitionKey, repository.PartitionConfig, int, int, leaderboard.RemovedFilter) ([]repository.Entry, int, error) {
	d.calls.Add(1)
	return nil, 0, errDown
}

func (d *downProvider) Neighbors(context.Context, leaderboard.PartitionKey, repository.PartitionConfig, string, int, int, int, leaderboard.RemovedFilter) (repository.Window, error) {
	d.calls.Add(1)
	return repository.Window{}, errDown
}

// seedWarmer fills a partition with fixed scores.
type seedWarmer struct {
	scores map[string]int64
	err    error
	calls  atomic.Int32
	delay  time.Duration
}

func (w *seedWarmer) Warm(_ context.Context, p *repository.Partition) (int, error) {
	w.calls.Add(1)
	time.Sleep(w.delay)
	if w.err != nil {
		return 0, w.err
	}
	n := 0
	for k, v := range w.scores {
		if p.Seed(k, decimal.NewFromInt(v), false, time.Time{}) {
			n++
		}
	}
	p.MarkLoaded()
	return n, nil
}

func seedABC(ctx context.Context, f *fixture) {
	f.apply(ctx,
		change("c1", member(playerA, 100)),
		change("c2", member(playerB, 100)),
		change("c3", member(playerC, 90)),
	)
}

func TestQuery_GetSlice(t *testing.T) {
	Convey("Given a populated leaderboard", t, func() {
		f := newFixture()
		defer f.close()
		ctx := context.Background()
		seedABC(ctx, f)

		Convey("When the first page is requested", func() {
			s, err := f.query.GetSlice(ctx, "combat-xp", SliceQuery{Limit: 2})
			So(err, ShouldBeNil)

			Convey("Then it holds the top entries with the total", func() {
				So(s.Total, ShouldEqual, 3)
				So(s.Interval, ShouldEqual, "current")
				So(s.Removed, ShouldEqual, "not_removed")
				So(len(s.Entries), ShouldEqual, 2)
				So(s.Entries[0].Key, ShouldEqual, key(playerA))
				So(s.Entries[0].Rank, ShouldEqual, 1)
				So(s.Entries[1].Rank, ShouldEqual, 2)
				So(s.Entries[0].Meta, ShouldNotBeNil)
			})
		})

		Convey("When the page starts past the end", func() {
			s, err := f.query.GetSlice(ctx, "combat-xp", SliceQuery{Offset: 10, Limit: 5})

			Convey("Then it is empty", func() {
				So(err, ShouldBeNil)
				So(s.Entries, ShouldBeEmpty)
				So(s.Total, ShouldEqual, 3)
			})
		})

		Convey("When a month with no writes is requested", func() {
			prev := leaderboard.DateOf(f.clock.now().Add(-leaderboard.MonthDuration)).MonthKey()
			s, err := f.query.GetSlice(ctx, "combat-xp", SliceQuery{Limit: 5, Interval: string(prev)})

			Convey("Then it is empty", func() {
				So(err, ShouldBeNil)
				So(s.Entries, ShouldBeEmpty)
				So(s.Total, ShouldEqual, 0)
			})
		})

		Convey("When a limit of zero is requested", func() {
			s, err := f.query.GetSlice(ctx, "combat-xp", SliceQuery{})

			Convey("Then only the total is returned", func() {
				So(err, ShouldBeNil)
				So(s.Entries, ShouldBeEmpty)
				So(s.Total, ShouldEqual, 3)
			})
		})

		Convey("When the request is invalid", func() {
			cases := []struct {
				id    string
				q     SliceQuery
				field string
			}{
				{"nope", SliceQuery{Limit: 1}, "id"},
				{"combat-xp", SliceQuery{Limit: 101}, "limit"},
				{"combat-xp", SliceQuery{Limit: -1}, "limit"},
				{"combat-xp", SliceQuery{Offset: -1}, "offset"},
				{"combat-xp", SliceQuery{Interval: "2024-13"}, "interval"},
				{"bank-balance", SliceQuery{Interval: "0300-05"}, "interval"},
				{"combat-xp", SliceQuery{GameMode: "bingo"}, "mode"},
				{"combat-xp", SliceQuery{Removed: "maybe"}, "removed"},
			}
			for _, c := range cases {
				_, err := f.query.GetSlice(ctx, c.id, c.q)

				So(errors.Is(err, ErrValidation), ShouldBeTrue)
				var ve *ValidationError
				So(errors.As(err, &ve), ShouldBeTrue)
				So(ve.Field, ShouldEqual, c.field)
			}
		})
	})
}

func TestQuery_GetRank(t *testing.T) {
	Convey("Given a populated leaderboard", t, func() {
		f := newFixture()
		defer f.close()
		ctx := context.Background()
		seedABC(ctx, f)

		Convey("When a ranked member is looked up", func() {
			pos, err := f.query.GetRank(ctx, "combat-xp", RankQuery{
				PlayerUUID:  playerB,
				ProfileUUID: profile,
				Upcoming:    intp(5),
				Previous:    intp(3),
			})
			So(err, ShouldBeNil)

			Convey("Then its rank, score and neighbors are returned", func() {
				So(pos.Rank, ShouldEqual, 2)
				So(*pos.Score, ShouldEqual, 100.0)
				So(len(pos.Upcoming), ShouldEqual, 1)
				So(pos.Upcoming[0].Key, ShouldEqual, key(playerA))
				So(len(pos.Previous), ShouldEqual, 1)
				So(pos.Previous[0].Key, ShouldEqual, key(playerC))
			})
		})

		Convey("When no window is requested", func() {
			pos, err := f.query.GetRank(ctx, "combat-xp", RankQuery{PlayerUUID: playerC, ProfileUUID: profile})

			Convey("Then no neighbors are returned", func() {
				So(err, ShouldBeNil)
				So(pos.Rank, ShouldEqual, 3)
				So(pos.Upcoming, ShouldBeEmpty)
				So(pos.Previous, ShouldBeEmpty)
			})
		})

		Convey("When includeUpcoming is set without a size", func() {
			pos, err := f.query.GetRank(ctx, "combat-xp", RankQuery{
				PlayerUUID: playerC, ProfileUUID: profile, IncludeUpcoming: true,
			})

			Convey("Then the default window is used", func() {
				So(err, ShouldBeNil)
				So(len(pos.Upcoming), ShouldEqual, 2)
			})
		})

		Convey("When both includeUpcoming and an explicit size are set", func() {
			pos, err := f.query.GetRank(ctx, "combat-xp", RankQuery{
				PlayerUUID: playerC, ProfileUUID: profile, IncludeUpcoming: true, Upcoming: intp(1),
			})

			Convey("Then the explicit size wins", func() {
				So(err, ShouldBeNil)
				So(len(pos.Upcoming), ShouldEqual, 1)
				So(pos.Upcoming[0].Key, ShouldEqual, key(playerB))
			})
		})

		Convey("When an unranked member is looked up", func() {
			unknown := "44444444-4444-4444-4444-444444444444"
			_, err := f.query.GetRank(ctx, "combat-xp", RankQuery{PlayerUUID: unknown, ProfileUUID: profile})

			Convey("Then it is not found", func() {
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})

			Convey("When the window is anchored at a rank", func() {
				pos, err := f.query.GetRank(ctx, "combat-xp", RankQuery{
					PlayerUUID: unknown, ProfileUUID: profile, AtRank: intp(3), Upcoming: intp(1), Previous: intp(1),
				})

				Convey("Then the window is returned without a rank", func() {
					So(err, ShouldBeNil)
					So(pos.Ranked(), ShouldBeFalse)
					So(pos.Rank, ShouldEqual, types.NotRanked)
					So(pos.Score, ShouldBeNil)
					So(len(pos.Upcoming), ShouldEqual, 1)
					So(pos.Upcoming[0].Key, ShouldEqual, key(playerB))
					So(pos.Previous, ShouldBeEmpty)
				})
			})
		})

		Convey("When the anchor is explicitly unset", func() {
			pos, err := f.query.GetRank(ctx, "combat-xp", RankQuery{
				PlayerUUID: playerB, ProfileUUID: profile, AtRank: intp(-1), Upcoming: intp(1), Previous: intp(1),
			})

			Convey("Then the window is centred on the member", func() {
				So(err, ShouldBeNil)
				So(pos.Rank, ShouldEqual, 2)
				So(len(pos.Upcoming), ShouldEqual, 1)
				So(pos.Upcoming[0].Key, ShouldEqual, key(playerA))
				So(len(pos.Previous), ShouldEqual, 1)
				So(pos.Previous[0].Key, ShouldEqual, key(playerC))
			})
		})

		Convey("When the anchor is below -1", func() {
			_, err := f.query.GetRank(ctx, "combat-xp", RankQuery{PlayerUUID: playerA, ProfileUUID: profile, AtRank: intp(-2)})

			Convey("Then it is rejected", func() {
				var ve *ValidationError
				So(errors.As(err, &ve), ShouldBeTrue)
				So(ve.Field, ShouldEqual, "atRank")
			})
		})

		Convey("When the window sizes exceed their caps", func() {
			_, upErr := f.query.GetRank(ctx, "combat-xp", RankQuery{PlayerUUID: playerA, ProfileUUID: profile, Upcoming: intp(101)})
			_, prevErr := f.query.GetRank(ctx, "combat-xp", RankQuery{PlayerUUID: playerA, ProfileUUID: profile, Previous: intp(4)})

			Convey("Then they are rejected", func() {
				So(errors.Is(upErr, ErrValidation), ShouldBeTrue)
				So(errors.Is(prevErr, ErrValidation), ShouldBeTrue)
			})
		})

		Convey("When a member leaderboard is queried without a player", func() {
			_, err := f.query.GetRank(ctx, "combat-xp", RankQuery{ProfileUUID: profile})

			Convey("Then the player is required", func() {
				var ve *ValidationError
				So(errors.As(err, &ve), ShouldBeTrue)
				So(ve.Field, ShouldEqual, "player")
			})
		})

		Convey("When the profile is missing", func() {
			_, err := f.query.GetRank(ctx, "combat-xp", RankQuery{PlayerUUID: playerA})

			Convey("Then the profile is required", func() {
				var ve *ValidationError
				So(errors.As(err, &ve), ShouldBeTrue)
				So(ve.Field, ShouldEqual, "profile")
			})
		})
	})
}

func TestQuery_GetMultipleRanks(t *testing.T) {
	Convey("Given a member ranked on one of two leaderboards", t, func() {
		f := newFixture()
		defer f.close()
		ctx := context.Background()
		seedABC(ctx, f)

		Convey("When ranks are requested for both", func() {
			out, err := f.query.GetMultipleRanks(ctx, []string{"combat-xp", "fastest-run", "combat-xp"}, RankQuery{
				PlayerUUID: playerA, ProfileUUID: profile,
			})
			So(err, ShouldBeNil)

			Convey("Then each id has an entry and the unranked one is nil", func() {
				So(len(out), ShouldEqual, 2)
				So(out["combat-xp"].Rank, ShouldEqual, 1)
				So(out["fastest-run"], ShouldBeNil)
			})
		})

		Convey("When one id is unknown", func() {
			_, err := f.query.GetMultipleRanks(ctx, []string{"combat-xp", "nope"}, RankQuery{
				PlayerUUID: playerA, ProfileUUID: profile,
			})

			Convey("Then the whole batch is rejected", func() {
				So(errors.Is(err, ErrValidation), ShouldBeTrue)
			})
		})

		Convey("When no ids are given", func() {
			_, err := f.query.GetMultipleRanks(ctx, nil, RankQuery{PlayerUUID: playerA, ProfileUUID: profile})

			Convey("Then the ids are required", func() {
				So(errors.Is(err, ErrValidation), ShouldBeTrue)
			})
		})
	})

	Convey("Given many leaderboards and a concurrency of two", t, func() {
		var defs []leaderboard.Definition
		ids := make([]string, 0, 12)
		for i := range 12 {
			id := fmt.Sprintf("metric-%d", i)
			ids = append(ids, id)
			defs = append(defs, leaderboard.Definition{
				ID:            id,
				Title:         id,
				DataType:      leaderboard.Integer,
				IntervalTypes: []leaderboard.IntervalType{leaderboard.IntervalCurrent},
				EntityKind:    model.KindMember,
			})
		}
		f := newFixture(withRegistry(testRegistry(defs...)))
		defer f.close()
		ctx := context.Background()

		for _, id := range ids {
			p := f.store.Open(leaderboard.PartitionKey{Leaderboard: id, Interval: leaderboard.Current}, repository.PartitionConfig{Order: leaderboard.Desc})
			So(p.Upsert(key(playerA), decimal.NewFromInt(7), false, time.Now()), ShouldBeNil)
		}

		Convey("Then every lookup completes", func() {
			out, err := f.query.GetMultipleRanks(ctx, ids, RankQuery{PlayerUUID: playerA, ProfileUUID: profile})
			So(err, ShouldBeNil)
			So(len(out), ShouldEqual, len(ids))
			for _, id := range ids {
				So(out[id].Rank, ShouldEqual, 1)
			}
		})
	})
}

func TestQuery_Metadata(t *testing.T) {
	Convey("Given metadata for one member", t, func() {
		meta := metadata.NewStatic(map[string]map[string]string{
			key(playerA): {"name": "alpha"},
		})
		f := newFixture(withMeta(meta))
		defer f.close()
		ctx := context.Background()
		seedABC(ctx, f)

		Convey("Then known entries carry it and others get an empty map", func() {
			s, err := f.query.GetSlice(ctx, "combat-xp", SliceQuery{Limit: 3})
			So(err, ShouldBeNil)
			So(s.Entries[0].Meta, ShouldResemble, map[string]string{"name": "alpha"})
			So(s.Entries[1].Meta, ShouldNotBeNil)
			So(s.Entries[1].Meta, ShouldBeEmpty)
		})
	})

	Convey("Given a failing metadata service", t, func() {
		f := newFixture(withMeta(failingMeta{}))
		defer f.close()
		ctx := context.Background()
		seedABC(ctx, f)

		Convey("Then ranks are still served with null metadata", func() {
			s, err := f.query.GetSlice(ctx, "combat-xp", SliceQuery{Limit: 3})
			So(err, ShouldBeNil)
			So(len(s.Entries), ShouldEqual, 3)
			for _, e := range s.Entries {
				So(e.Meta, ShouldBeNil)
			}

			pos, err := f.query.GetRank(ctx, "combat-xp", RankQuery{
				PlayerUUID: playerB, ProfileUUID: profile, Upcoming: intp(1),
			})
			So(err, ShouldBeNil)
			So(pos.Rank, ShouldEqual, 2)
			So(pos.Upcoming[0].Meta, ShouldBeNil)
		})
	})
}

func TestQuery_Legacy(t *testing.T) {
	Convey("Given a legacy leaderboard backed by an unavailable store", t, func() {
		reg := testRegistry()
		So(reg.MarkLegacy("combat-xp"), ShouldBeNil)
		down := &downProvider{}
		f := newFixture(withRegistry(reg), withLegacyProvider(down))
		defer f.close()
		ctx := context.Background()
		seedABC(ctx, f)

		Convey("When it is queried", func() {
			_, sliceErr := f.query.GetSlice(ctx, "combat-xp", SliceQuery{Limit: 1})
			_, rankErr := f.query.GetRank(ctx, "combat-xp", RankQuery{PlayerUUID: playerA, ProfileUUID: profile})

			Convey("Then the failure is reported as unavailable", func() {
				So(errors.Is(sliceErr, ErrUnavailable), ShouldBeTrue)
				So(errors.Is(sliceErr, errDown), ShouldBeTrue)
				So(errors.Is(rankErr, ErrUnavailable), ShouldBeTrue)
				So(down.calls.Load(), ShouldEqual, 2)
			})
		})

		Convey("When a batch includes it", func() {
			_, err := f.query.GetMultipleRanks(ctx, []string{"fastest-run", "combat-xp"}, RankQuery{
				PlayerUUID: playerA, ProfileUUID: profile,
			})

			Convey("Then the batch fails", func() {
				So(errors.Is(err, ErrUnavailable), ShouldBeTrue)
			})
		})

		Convey("When a migrated leaderboard is queried", func() {
			s, err := f.query.GetSlice(ctx, "fastest-run", SliceQuery{Limit: 1})

			Convey("Then the store serves it", func() {
				So(err, ShouldBeNil)
				So(s.Total, ShouldEqual, 0)
				So(down.calls.Load(), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a legacy leaderboard without a legacy backend", t, func() {
		reg := testRegistry()
		So(reg.MarkLegacy("combat-xp"), ShouldBeNil)
		f := newFixture(withRegistry(reg))
		defer f.close()
		ctx := context.Background()
		seedABC(ctx, f)

		Convey("Then the store serves it", func() {
			s, err := f.query.GetSlice(ctx, "combat-xp", SliceQuery{Limit: 3})
			So(err, ShouldBeNil)
			So(s.Total, ShouldEqual, 3)
		})
	})
}

func TestQuery_WarmOnMiss(t *testing.T) {
	Convey("Given a warmer holding historic scores", t, func() {
		w := &seedWarmer{
			scores: map[string]int64{key(playerA): 5, key(playerB): 9},
			delay:  20 * time.Millisecond,
		}
		f := newFixture(withWarmer(w))
		defer f.close()
		ctx := context.Background()

		Convey("When a cold partition is read concurrently", func() {
			done := make(chan error, 4)
			for range 4 {
				go func() {
					_, err := f.query.GetSlice(ctx, "combat-xp", SliceQuery{Limit: 5})
					done <- err
				}()
			}
			for range 4 {
				So(<-done, ShouldBeNil)
			}

			Convey("Then it is warmed once", func() {
				So(w.calls.Load(), ShouldEqual, 1)
				s, err := f.query.GetSlice(ctx, "combat-xp", SliceQuery{Limit: 5})
				So(err, ShouldBeNil)
				So(s.Total, ShouldEqual, 2)
				So(s.Entries[0].Key, ShouldEqual, key(playerB))
				So(w.calls.Load(), ShouldEqual, 1)
			})
		})

		Convey("When newer writes exist before warming", func() {
			f.apply(ctx, change("c1", member(playerA, 50)))
			s, err := f.query.GetSlice(ctx, "combat-xp", SliceQuery{Limit: 5})

			Convey("Then the newer value is kept", func() {
				So(err, ShouldBeNil)
				So(s.Entries[0].Key, ShouldEqual, key(playerA))
				So(s.Entries[0].Score, ShouldEqual, 50.0)
			})
		})

		Convey("When a past month is read", func() {
			prev := leaderboard.DateOf(f.clock.now().Add(-leaderboard.MonthDuration)).MonthKey()
			s, err := f.query.GetSlice(ctx, "combat-xp", SliceQuery{Limit: 5, Interval: string(prev)})

			Convey("Then it is warmed and frozen", func() {
				So(err, ShouldBeNil)
				So(s.Total, ShouldEqual, 2)
				p, ok := f.partition("combat-xp", prev, "")
				So(ok, ShouldBeTrue)
				So(p.Frozen(), ShouldBeTrue)
			})
		})

		Convey("When a future month is read", func() {
			next, _ := f.calendar.CurrentMonth().Next()
			s, err := f.query.GetSlice(ctx, "combat-xp", SliceQuery{Limit: 5, Interval: string(next)})

			Convey("Then nothing is opened or warmed", func() {
				So(err, ShouldBeNil)
				So(s.Total, ShouldEqual, 0)
				So(w.calls.Load(), ShouldEqual, 0)
				_, ok := f.partition("combat-xp", next, "")
				So(ok, ShouldBeFalse)
			})
		})
	})

	Convey("Given a warmer that fails", t, func() {
		w := &seedWarmer{err: errDown}
		f := newFixture(withWarmer(w))
		defer f.close()
		ctx := context.Background()
		f.apply(ctx, change("c1", member(playerA, 50)))

		Convey("Then in-memory entries are still served", func() {
			s, err := f.query.GetSlice(ctx, "combat-xp", SliceQuery{Limit: 5})
			So(err, ShouldBeNil)
			So(s.Total, ShouldEqual, 1)
		})
	})
}

func TestTranslate(t *testing.T) {
	Convey("Given backend errors", t, func() {
		So(translate(nil), ShouldBeNil)
		So(errors.Is(translate(repository.ErrNotFound), ErrNotFound), ShouldBeTrue)
		So(errors.Is(translate(repository.ErrInvalidLimit), ErrValidation), ShouldBeTrue)
		So(errors.Is(translate(repository.ErrInvalidOffset), ErrValidation), ShouldBeTrue)
		So(translate(context.Canceled), ShouldEqual, context.Canceled)
		So(errors.Is(translate(context.DeadlineExceeded), ErrUnavailable), ShouldBeFalse)
		So(errors.Is(translate(errDown), ErrUnavailable), ShouldBeTrue)
	})
}
