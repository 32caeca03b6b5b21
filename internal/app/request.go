package service

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/okian/skyrank/internal/adapters/repository"
	"github.com/okian/skyrank/internal/domain/leaderboard"
	"github.com/okian/skyrank/internal/domain/model"
)

// SliceQuery selects a page of one leaderboard partition.
type SliceQuery struct {
	Offset   int    `json:"offset" validate:"gte=0"`
	Limit    int    `json:"limit" validate:"gte=0"`
	Interval string `json:"interval"`
	GameMode string `json:"mode"`
	Removed  string `json:"removed"`
}

// RankQuery selects one entity's standing and its neighbor window.
type RankQuery struct {
	PlayerUUID  string `json:"player"`
	ProfileUUID string `json:"profile" validate:"required"`

	// Upcoming and Previous are window sizes; nil means not requested.
	Upcoming *int `json:"upcoming" validate:"omitempty,gte=0,lte=100"`
	Previous *int `json:"previous" validate:"omitempty,gte=0,lte=3"`

	// IncludeUpcoming asks for the default upcoming window when Upcoming
	// is not set.
	IncludeUpcoming bool `json:"includeUpcoming"`

	// AtRank anchors the window at an explicit rank instead of the
	// entity's own.
	AtRank *int `json:"atRank" validate:"omitempty,gte=-1"`

	Interval string `json:"interval"`
	GameMode string `json:"mode"`
	Removed  string `json:"removed"`
}

// target is a request resolved against the registry.
type target struct {
	def    *leaderboard.Definition
	key    leaderboard.PartitionKey
	cfg    repository.PartitionConfig
	filter leaderboard.RemovedFilter
}

// window is a resolved neighbor request.
type window struct {
	entity   string
	upcoming int
	previous int
	atRank   int
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError converts validator output into a ValidationError naming
// the first offending parameter.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Reason: err.Error()}
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return invalid(fe.Field(), "is required")
	case "gte":
		return invalid(fe.Field(), "must be at least %s", fe.Param())
	case "lte":
		return invalid(fe.Field(), "must be at most %s", fe.Param())
	default:
		return invalid(fe.Field(), "is invalid")
	}
}

// resolve validates the partition selectors shared by every query.
func (q *Query) resolve(id, interval, mode, removed string) (target, error) {
	def, err := q.registry.Get(id)
	if err != nil {
		return target{}, invalid("id", "unknown leaderboard %q", id)
	}

	iv, err := leaderboard.ParseInterval(interval)
	if err != nil {
		return target{}, invalid("interval", "%v", err)
	}
	switch {
	case iv.IsCurrent() && !def.Supports(leaderboard.IntervalCurrent):
		return target{}, invalid("interval", "%s has no current ranking", id)
	case !iv.IsCurrent() && !def.Supports(leaderboard.IntervalMonthly):
		return target{}, invalid("interval", "%s has no monthly ranking", id)
	}

	gm, err := q.modes.Parse(mode)
	if err != nil {
		return target{}, invalid("mode", "%v", err)
	}
	f, err := leaderboard.ParseRemovedFilter(removed)
	if err != nil {
		return target{}, invalid("removed", "%v", err)
	}

	return target{
		def:    def,
		key:    leaderboard.PartitionKey{Leaderboard: def.ID, Interval: iv, GameMode: gm},
		cfg:    repository.ConfigFor(def),
		filter: f,
	}, nil
}

// entityKey derives the key an entity is ranked under on def.
func entityKey(def *leaderboard.Definition, player, profile string) (string, error) {
	if def.EntityKind == model.KindMember {
		if strings.TrimSpace(player) == "" {
			return "", invalid("player", "is required for %s", def.ID)
		}
		key, err := model.MemberKey(player, profile)
		if err != nil {
			return "", invalid("player", "%v", err)
		}
		return key, nil
	}
	key, err := model.NormalizeUUID(profile)
	if err != nil {
		return "", invalid("profile", "%v", err)
	}
	return key, nil
}

// windowFor applies the window defaults. An explicit upcoming wins over
// includeUpcoming.
func (q *Query) windowFor(r *RankQuery, entity string) window {
	w := window{entity: entity, atRank: -1}
	switch {
	case r.Upcoming != nil:
		w.upcoming = *r.Upcoming
	case r.IncludeUpcoming:
		w.upcoming = q.defaultUpcoming
	}
	if r.Previous != nil {
		w.previous = *r.Previous
	}
	if r.AtRank != nil {
		w.atRank = *r.AtRank
	}
	return w
}

func (q *Query) validateSlice(sq *SliceQuery) error {
	if err := q.validate.Struct(sq); err != nil {
		return validationError(err)
	}
	if sq.Limit > q.maxSliceLimit {
		return invalid("limit", "must be at most %d", q.maxSliceLimit)
	}
	return nil
}

func (q *Query) validateRank(rq *RankQuery) error {
	if err := q.validate.Struct(rq); err != nil {
		return validationError(err)
	}
	return nil
}

