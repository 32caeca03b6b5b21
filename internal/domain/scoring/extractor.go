// Package scoring turns entity snapshots into leaderboard scores.
package scoring

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/okian/skyrank/internal/domain/leaderboard"
	"github.com/okian/skyrank/internal/domain/model"
)

// decimalPlaces is the precision Decimal leaderboards keep.
const decimalPlaces = 6

// MaxScore is the largest score the store can order exactly: scores are kept
// as int64 with six fractional digits. Larger values are malformed.
const MaxScore = 9_223_372_036_854

// ScoreFunc reads one metric from a snapshot. ok=false means the entity has
// no data for the metric and is left off the leaderboard.
type ScoreFunc func(cfg *Config, snap *model.Snapshot) (value float64, ok bool)

// Result is an extracted score. Present=false means Absent.
type Result struct {
	Value   decimal.Decimal
	Present bool
}

// Absent is the result for entities without the metric.
var Absent = Result{}

// Option applies a configuration option to the Extractor.
type Option func(*Extractor)

// WithConfig sets the tunables score functions read.
func WithConfig(cfg Config) Option {
	return func(e *Extractor) {
		e.cfg = cfg.withDefaults()
	}
}

// WithFuncs adds score functions keyed by leaderboard id.
func WithFuncs(funcs map[string]ScoreFunc) Option {
	return func(e *Extractor) {
		for id, fn := range funcs {
			if fn != nil {
				e.funcs[id] = fn
			}
		}
	}
}

// Extractor resolves a definition's score function and coerces its output
// to the definition's data type. It holds no mutable state and is safe for
// concurrent use.
type Extractor struct {
	cfg   Config
	funcs map[string]ScoreFunc
}

// NewExtractor creates an extractor. Without WithFuncs it knows no leaderboards.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		cfg:   DefaultConfig().withDefaults(),
		funcs: make(map[string]ScoreFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Has reports whether a score function exists for id.
func (e *Extractor) Has(id string) bool {
	_, ok := e.funcs[id]
	return ok
}

// Extract computes def's score for snap. A panicking score function is
// reported as ErrExtractionPanic.
func (e *Extractor) Extract(def *leaderboard.Definition, snap *model.Snapshot) (res Result, err error) {
	fn, ok := e.funcs[def.ID]
	if !ok {
		return Absent, fmt.Errorf("scoring.Extract: %w: %s", ErrNoScoreFunc, def.ID)
	}
	if snap == nil || snap.Kind != def.EntityKind {
		return Absent, fmt.Errorf("scoring.Extract %s: %w", def.ID, ErrKindMismatch)
	}

	defer func() {
		if r := recover(); r != nil {
			res = Absent
			err = fmt.Errorf("scoring.Extract %s: %w: %v", def.ID, ErrExtractionPanic, r)
		}
	}()

	raw, ok := fn(&e.cfg, snap)
	if !ok {
		return Absent, nil
	}
	if math.IsNaN(raw) || math.IsInf(raw, 0) || raw < 0 || raw > MaxScore {
		return Absent, fmt.Errorf("scoring.Extract %s: %w: value %v", def.ID, ErrMalformedSnapshot, raw)
	}
	return Result{Value: Coerce(def.DataType, decimal.NewFromFloat(raw)), Present: true}, nil
}

// Coerce applies a data type's precision: Integer truncates to whole units,
// Decimal rounds to six fractional digits.
func Coerce(dt leaderboard.DataType, v decimal.Decimal) decimal.Decimal {
	if dt == leaderboard.Integer {
		return v.Truncate(0)
	}
	return v.Round(decimalPlaces)
}
