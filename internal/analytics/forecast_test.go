package analytics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLinearForecast(t *testing.T) {
	cases := []struct {
		name   string
		series []float64
		want   LinearResult
	}{
		{"empty", nil, LinearResult{Trend: TrendStable}},
		{"single", []float64{5}, LinearResult{Prediction: 5, Trend: TrendStable}},
		{"single rounds", []float64{5.4567}, LinearResult{Prediction: 5.46, Trend: TrendStable}},
		{"rising", []float64{10, 20, 30}, LinearResult{Prediction: 40, Slope: 10, Trend: TrendUp}},
		{"falling clamps at zero", []float64{30, 20, 10}, LinearResult{Prediction: 0, Slope: -10, Trend: TrendDown}},
		{"flat", []float64{5, 5, 5}, LinearResult{Prediction: 5, Trend: TrendStable}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := LinearForecast(tc.series)
			require.InDelta(t, tc.want.Prediction, got.Prediction, 1e-9)
			require.InDelta(t, tc.want.Slope, got.Slope, 1e-9)
			require.Equal(t, tc.want.Trend, got.Trend)
		})
	}
}

func TestLinearForecastNeverNegative(t *testing.T) {
	got := LinearForecast([]float64{1000, 500, 10, 0, 0, 0})
	require.GreaterOrEqual(t, got.Prediction, 0.0)
	require.Equal(t, TrendDown, got.Trend)
}

func TestAdvancedBand(t *testing.T) {
	adv := advancedFrom(ForecastReport{Revenue: 100, Trend: TrendUp})
	require.Equal(t, 85.0, adv.Lower)
	require.Equal(t, 115.0, adv.Upper)
	require.Equal(t, 75, adv.Confidence)
	require.Equal(t, "linear_regression_heuristic_band", adv.Method)
	require.LessOrEqual(t, adv.Lower, adv.Revenue)
	require.GreaterOrEqual(t, adv.Upper, adv.Revenue)
}
