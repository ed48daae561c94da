package analytics

import "math"

// Profit status labels.
const (
	ProfitStatusProfit    = "profit"
	ProfitStatusLoss      = "loss"
	ProfitStatusBreakeven = "breakeven"
)

// Growth returns the percentage change from previous to current rounded to one
// decimal. A zero baseline yields 100 when current is non-zero and 0 otherwise.
func Growth(current, previous float64) float64 {
	if almostZero(previous) {
		if almostZero(current) {
			return 0
		}
		return 100
	}
	return Round1((current - previous) / previous * 100)
}

// Percentage returns part/total*100 rounded to one decimal, 0 for a zero total.
func Percentage(part, total float64) float64 {
	return Round1(SafeDiv(part, total) * 100)
}

// Margin returns profit as a percentage of revenue.
func Margin(profit, revenue float64) float64 {
	return Percentage(profit, revenue)
}

// SafeDiv divides, returning 0 when the denominator is zero.
func SafeDiv(numerator, denominator float64) float64 {
	if almostZero(denominator) {
		return 0
	}
	return numerator / denominator
}

// ProfitStatus labels a profit figure.
func ProfitStatus(profit float64) string {
	switch {
	case almostZero(profit):
		return ProfitStatusBreakeven
	case profit > 0:
		return ProfitStatusProfit
	default:
		return ProfitStatusLoss
	}
}

// HealthScore blends margin, growth and collection ratio (all percentages)
// into a 0-100 score weighted 40/30/30. Growth is centred so that flat
// revenue scores 50 on its component.
func HealthScore(margin, growth, collectionRatio float64) float64 {
	marginPart := clamp(margin, 0, 100)
	growthPart := clamp(50+growth/2, 0, 100)
	collectionPart := clamp(collectionRatio, 0, 100)
	return Round1(clamp(0.4*marginPart+0.3*growthPart+0.3*collectionPart, 0, 100))
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func almostZero(v float64) bool {
	return v > -0.0001 && v < 0.0001
}
