package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrowth(t *testing.T) {
	cases := []struct {
		name              string
		current, previous float64
		want              float64
	}{
		{"up", 150, 100, 50},
		{"down", 50, 100, -50},
		{"rounded", 1, 3, -66.7},
		{"zero baseline", 10, 0, 100},
		{"both zero", 0, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Growth(tc.current, tc.previous))
		})
	}
}

func TestPercentageAndMargin(t *testing.T) {
	assert.Equal(t, 33.3, Percentage(1, 3))
	assert.Equal(t, 0.0, Percentage(5, 0))
	assert.Equal(t, 25.0, Margin(25, 100))
	assert.Equal(t, 0.0, Margin(25, 0))
	assert.Equal(t, 0.0, SafeDiv(1, 0))
}

func TestProfitStatus(t *testing.T) {
	assert.Equal(t, ProfitStatusProfit, ProfitStatus(10))
	assert.Equal(t, ProfitStatusLoss, ProfitStatus(-0.5))
	assert.Equal(t, ProfitStatusBreakeven, ProfitStatus(0.00001))
}

func TestHealthScoreWeightsAndClamps(t *testing.T) {
	require.InDelta(t, 55.0, HealthScore(25, 0, 100), 0.001)
	require.InDelta(t, 70.0, HealthScore(200, 500, -10), 0.001)
	require.InDelta(t, 0.0, HealthScore(-50, -500, 0), 0.001)
	for _, margin := range []float64{-100, 0, 50, 300} {
		score := HealthScore(margin, margin, margin)
		require.GreaterOrEqual(t, score, 0.0)
		require.LessOrEqual(t, score, 100.0)
	}
}
