// Package leaderboard holds leaderboard definitions, their registry and the
// partition axes (interval, game mode, removed state) rankings are split on.
package leaderboard

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/okian/skyrank/internal/domain/model"
)

// DataType is the numeric semantics of a leaderboard's score.
type DataType string

const (
	Integer DataType = "integer"
	Decimal DataType = "decimal"
)

// IntervalType is a kind of window a leaderboard is ranked over.
type IntervalType string

const (
	IntervalCurrent IntervalType = "current"
	IntervalMonthly IntervalType = "monthly"
)

// Order is the sort direction of scores.
type Order string

const (
	Desc Order = "desc"
	Asc  Order = "asc"
)

var idPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Definition describes one ranked metric. It is immutable once registered.
type Definition struct {
	ID         string
	Title      string
	ShortTitle string
	Category   string
	DataType   DataType
	// MinimumScore excludes entries scoring below it.
	MinimumScore  decimal.Decimal
	IntervalTypes []IntervalType
	EntityKind    model.EntityKind
	// UseIncreaseForInterval ranks monthly entries by their increase since the
	// month opened instead of the absolute value.
	UseIncreaseForInterval bool
	Order                  Order
	// Legacy routes reads to the relational store while the leaderboard is
	// being migrated.
	Legacy bool
}

// Supports reports whether the leaderboard is ranked over t.
func (d *Definition) Supports(t IntervalType) bool {
	for _, it := range d.IntervalTypes {
		if it == t {
			return true
		}
	}
	return false
}

// Descending reports whether higher scores rank first.
func (d *Definition) Descending() bool {
	return d.Order != Asc
}

// Validate checks the definition is complete and consistent.
func (d *Definition) Validate() error {
	switch {
	case !idPattern.MatchString(d.ID):
		return fmt.Errorf("%w: id %q is not a slug", ErrInvalidDefinition, d.ID)
	case d.Title == "":
		return fmt.Errorf("%w: %s: title is required", ErrInvalidDefinition, d.ID)
	case d.DataType != Integer && d.DataType != Decimal:
		return fmt.Errorf("%w: %s: unknown data type %q", ErrInvalidDefinition, d.ID, d.DataType)
	case !d.EntityKind.Valid():
		return fmt.Errorf("%w: %s: unknown entity kind %q", ErrInvalidDefinition, d.ID, d.EntityKind)
	case d.Order != "" && d.Order != Desc && d.Order != Asc:
		return fmt.Errorf("%w: %s: unknown order %q", ErrInvalidDefinition, d.ID, d.Order)
	case len(d.IntervalTypes) == 0:
		return fmt.Errorf("%w: %s: no interval types", ErrInvalidDefinition, d.ID)
	case d.UseIncreaseForInterval && !d.Supports(IntervalMonthly):
		return fmt.Errorf("%w: %s: increase ranking needs a monthly interval", ErrInvalidDefinition, d.ID)
	case d.MinimumScore.IsNegative():
		return fmt.Errorf("%w: %s: negative minimum score", ErrInvalidDefinition, d.ID)
	}
	for _, it := range d.IntervalTypes {
		if it != IntervalCurrent && it != IntervalMonthly {
			return fmt.Errorf("%w: %s: unknown interval type %q", ErrInvalidDefinition, d.ID, it)
		}
	}
	return nil
}
