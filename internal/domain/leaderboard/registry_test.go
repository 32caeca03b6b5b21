package leaderboard_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/skyrank/internal/domain/leaderboard"
	"github.com/okian/skyrank/internal/domain/model"
)

func def(id, category string, kind model.EntityKind) leaderboard.Definition {
	return leaderboard.Definition{
		ID:            id,
		Title:         id,
		Category:      category,
		DataType:      leaderboard.Integer,
		IntervalTypes: []leaderboard.IntervalType{leaderboard.IntervalCurrent},
		EntityKind:    kind,
	}
}

func TestRegistry(t *testing.T) {
	Convey("Given an empty registry", t, func() {
		r := leaderboard.NewRegistry()

		Convey("When definitions are registered", func() {
			So(r.Register(def("slayer-zombie", "slayers", model.KindMember)), ShouldBeNil)
			So(r.Register(def("skill-farming", "skills", model.KindMember)), ShouldBeNil)
			So(r.Register(def("bank", "profile", model.KindProfile)), ShouldBeNil)
			So(r.Register(def("skill-mining", "skills", model.KindMember)), ShouldBeNil)

			Convey("Then Get returns them with defaults applied", func() {
				d, err := r.Get("skill-farming")
				So(err, ShouldBeNil)
				So(d.Order, ShouldEqual, leaderboard.Desc)
				So(d.Descending(), ShouldBeTrue)
			})

			Convey("Then All is ordered by category and id", func() {
				var ids []string
				for _, d := range r.All() {
					ids = append(ids, d.ID)
				}
				So(ids, ShouldResemble, []string{"bank", "skill-farming", "skill-mining", "slayer-zombie"})
			})

			Convey("Then ForKind splits member and profile leaderboards", func() {
				So(len(r.ForKind(model.KindMember)), ShouldEqual, 3)
				So(len(r.ForKind(model.KindProfile)), ShouldEqual, 1)
			})

			Convey("Then a duplicate id is rejected", func() {
				err := r.Register(def("bank", "other", model.KindProfile))
				So(errors.Is(err, leaderboard.ErrDuplicateLeaderboard), ShouldBeTrue)
			})

			Convey("Then MustRegister panics on a duplicate", func() {
				So(func() { r.MustRegister(def("skill-mining", "skills", model.KindMember)) }, ShouldPanic)
			})

			Convey("Then MarkLegacy flags known ids and rejects unknown ones", func() {
				So(r.MarkLegacy("bank"), ShouldBeNil)
				d, _ := r.Get("bank")
				So(d.Legacy, ShouldBeTrue)
				So(errors.Is(r.MarkLegacy("nope"), leaderboard.ErrUnknownLeaderboard), ShouldBeTrue)
			})

			Convey("Then a sealed registry refuses changes", func() {
				r.Seal()
				err := r.Register(def("skill-combat", "skills", model.KindMember))
				So(errors.Is(err, leaderboard.ErrRegistrySealed), ShouldBeTrue)
				So(r.Len(), ShouldEqual, 4)
			})
		})

		Convey("When looking up an unknown id", func() {
			_, err := r.Get("missing")

			Convey("Then it should fail with ErrUnknownLeaderboard", func() {
				So(errors.Is(err, leaderboard.ErrUnknownLeaderboard), ShouldBeTrue)
			})
		})

		Convey("When registering invalid definitions", func() {
			bad := []leaderboard.Definition{
				def("Not A Slug", "x", model.KindMember),
				func() leaderboard.Definition { d := def("no-type", "x", model.KindMember); d.DataType = ""; return d }(),
				func() leaderboard.Definition { d := def("no-kind", "x", ""); return d }(),
				func() leaderboard.Definition {
					d := def("increase-current", "x", model.KindMember)
					d.UseIncreaseForInterval = true
					return d
				}(),
				func() leaderboard.Definition {
					d := def("negative-min", "x", model.KindMember)
					d.MinimumScore = decimal.NewFromInt(-1)
					return d
				}(),
			}

			Convey("Then each is rejected with ErrInvalidDefinition", func() {
				for _, d := range bad {
					So(errors.Is(r.Register(d), leaderboard.ErrInvalidDefinition), ShouldBeTrue)
				}
				So(r.Len(), ShouldEqual, 0)
			})
		})
	})
}
