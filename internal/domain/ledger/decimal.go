package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RoundHalfUp quantizes d to two fractional digits using half-up rounding,
// matching the original system's Decimal.quantize(PRECISION,
// ROUND_HALF_UP) — shopspring/decimal's own Round is half-even, so callers
// must always go through this helper rather than d.Round(2) directly.
func RoundHalfUp(d decimal.Decimal) decimal.Decimal {
	// Shift two places, add/subtract 0.5 toward the rounding direction,
	// truncate, shift back. This is the standard half-up trick and avoids
	// relying on float64 at any point.
	hundred := decimal.NewFromInt(100)
	shifted := d.Mul(hundred)

	half := decimal.NewFromFloat(0.5)
	if shifted.IsNegative() {
		shifted = shifted.Sub(half)
	} else {
		shifted = shifted.Add(half)
	}

	return shifted.Truncate(0).Div(hundred).Truncate(2)
}

// ParseAmount parses a decimal string into a non-negative, two-decimal
// amount. It rejects NaN-equivalents (shopspring/decimal never produces
// them, but malformed input strings fail to parse and are surfaced as an
// error here rather than panicking).
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}

	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount %s is negative", s)
	}

	return RoundHalfUp(d), nil
}
