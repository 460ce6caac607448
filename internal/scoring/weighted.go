package scoring

import (
	"math"

	"github.com/shopspring/decimal"
)

// Weighted is a sub-score paired with its fixed weight.
type Weighted struct {
	SubScore float64
	Weight   float64
}

// Contribution returns SubScore * Weight.
func (w Weighted) Contribution() float64 {
	return decimal.NewFromFloat(w.SubScore).
		Mul(decimal.NewFromFloat(w.Weight)).
		InexactFloat64()
}

// Sum returns Σ subscore_i * weight_i.
// Products are accumulated in decimal so that weights such as 0.4 + 0.3 + 0.15 + 0.15
// sum to exactly 1.
func Sum(terms ...Weighted) float64 {
	total := decimal.Zero
	for _, t := range terms {
		total = total.Add(decimal.NewFromFloat(t.SubScore).Mul(decimal.NewFromFloat(t.Weight)))
	}
	return total.InexactFloat64()
}

// Add returns a + b without binary float drift.
func Add(a, b float64) float64 {
	return decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).InexactFloat64()
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	if !finite(v) {
		return v
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// RoundInt rounds to the nearest integer.
func RoundInt(v float64) float64 {
	if !finite(v) {
		return v
	}
	return decimal.NewFromFloat(v).Round(0).InexactFloat64()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
