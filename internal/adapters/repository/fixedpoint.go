package repository

import (
	"math"

	"github.com/shopspring/decimal"
)

// scoreScale stores scores with six fractional digits, the precision of
// Decimal leaderboards.
const (
	scoreScale    = 1_000_000
	scoreDecimals = 6
)

type scoreFP int64

var (
	maxFP = decimal.NewFromInt(math.MaxInt64)
	minFP = decimal.NewFromInt(math.MinInt64)
)

// toFixedPoint converts d, rounding to six digits and saturating at the
// int64 range. Extraction rejects scores above scoring.MaxScore, so stored
// scores never saturate.
func toFixedPoint(d decimal.Decimal) scoreFP {
	scaled := d.Shift(scoreDecimals).Round(0)
	if scaled.GreaterThan(maxFP) {
		return scoreFP(math.MaxInt64)
	}
	if scaled.LessThan(minFP) {
		return scoreFP(math.MinInt64)
	}
	return scoreFP(scaled.IntPart())
}

// Decimal returns the exact stored score.
func (s scoreFP) Decimal() decimal.Decimal {
	return decimal.New(int64(s), -scoreDecimals)
}

// Float64 returns the score for JSON responses.
func (s scoreFP) Float64() float64 {
	return float64(s) / scoreScale
}
