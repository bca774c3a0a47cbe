package club

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var (
	minScore = decimal.Zero
	maxScore = decimal.NewFromInt(10)
)

// Score is a validated 0-10 rating value with one fractional digit.
type Score struct {
	value decimal.Decimal
}

// NewScore validates the raw value and rounds it to one fractional digit.
// Values outside [0, 10] are rejected rather than clamped.
func NewScore(raw float64) (Score, error) {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return Score{}, fmt.Errorf("%w: %v", ErrScoreOutOfRange, raw)
	}
	value := decimal.NewFromFloat(raw)
	if value.LessThan(minScore) || value.GreaterThan(maxScore) {
		return Score{}, fmt.Errorf("%w: %s", ErrScoreOutOfRange, value.String())
	}
	return Score{value: value.Round(1)}, nil
}

// Decimal exposes the stored representation.
func (s Score) Decimal() decimal.Decimal {
	return s.value
}

// Float64 returns the score as a float for JSON rendering.
func (s Score) Float64() float64 {
	f, _ := s.value.Float64()
	return f
}

func (s Score) nullable() decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: s.value, Valid: true}
}

// ScoreColor maps a score onto the red-yellow-green gradient used next to ratings.
// 0 renders red, 5 yellow and 10 green.
func ScoreColor(score float64) string {
	s := math.Max(0, math.Min(10, score))

	var r, g float64
	if s <= 5 {
		r = 255
		g = math.Round((s / 5) * 255)
	} else {
		r = math.Round(((10 - s) / 5) * 255)
		g = 255
	}
	return fmt.Sprintf("rgb(%d, %d, 50)", int(r), int(g))
}
