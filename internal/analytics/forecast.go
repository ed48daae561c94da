package analytics

import (
	"context"
	"math"

	"github.com/odyssey-erp/odyssey-analytics/internal/analytics/pipeline"
)

// Trend labels.
const (
	TrendUp     = "up"
	TrendDown   = "down"
	TrendStable = "stable"
)

const (
	forecastMonths = 6
	// The advanced band is a fixed heuristic multiplier around the point
	// prediction, not a statistical interval.
	advancedLowerFactor = 0.85
	advancedUpperFactor = 1.15
	advancedConfidence  = 75
	advancedMethod      = "linear_regression_heuristic_band"
)

// HistoricalPoint is one observed month of the forecast input.
type HistoricalPoint struct {
	Period  string  `json:"period"`
	Revenue float64 `json:"revenue"`
}

// LinearResult is the outcome of an OLS fit over a series.
type LinearResult struct {
	Prediction float64
	Slope      float64
	Trend      string
}

// LinearForecast fits y = intercept + slope*x with x = 1..n and predicts x = n+1.
// Predictions are clamped to zero. Fewer than two points returns the single
// known value (or zero); a degenerate denominator returns the last value.
func LinearForecast(series []float64) LinearResult {
	n := len(series)
	switch n {
	case 0:
		return LinearResult{Trend: TrendStable}
	case 1:
		return LinearResult{Prediction: Round2(math.Max(0, series[0])), Trend: TrendStable}
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range series {
		x := float64(i + 1)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	denominator := fn*sumXX - sumX*sumX
	if almostZero(denominator) {
		return LinearResult{Prediction: Round2(math.Max(0, series[n-1])), Trend: TrendStable}
	}
	slope := (fn*sumXY - sumX*sumY) / denominator
	intercept := (sumY - slope*sumX) / fn
	prediction := math.Max(0, intercept+slope*float64(n+1))

	trend := TrendStable
	switch {
	case almostZero(slope):
		slope = 0
	case slope > 0:
		trend = TrendUp
	default:
		trend = TrendDown
	}
	return LinearResult{Prediction: Round2(prediction), Slope: slope, Trend: trend}
}

// ForecastReport is the base revenue forecast.
type ForecastReport struct {
	Revenue    float64           `json:"revenue"`
	Trend      string            `json:"trend"`
	Historical []HistoricalPoint `json:"historical"`
}

// AdvancedForecastReport adds a heuristic band around the base prediction.
type AdvancedForecastReport struct {
	Revenue    float64           `json:"revenue"`
	Trend      string            `json:"trend"`
	Lower      float64           `json:"lower"`
	Upper      float64           `json:"upper"`
	Confidence int               `json:"confidence"`
	Method     string            `json:"method"`
	Historical []HistoricalPoint `json:"historical"`
}

func advancedFrom(base ForecastReport) AdvancedForecastReport {
	return AdvancedForecastReport{
		Revenue:    base.Revenue,
		Trend:      base.Trend,
		Lower:      Round2(base.Revenue * advancedLowerFactor),
		Upper:      Round2(base.Revenue * advancedUpperFactor),
		Confidence: advancedConfidence,
		Method:     advancedMethod,
		Historical: base.Historical,
	}
}

func seriesValues(points []HistoricalPoint) []float64 {
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Revenue
	}
	return values
}

// Forecast predicts next month's revenue from the trailing six calendar
// months ending with the window's end month. Missing months count as zero.
func (s *Service) Forecast(ctx context.Context, p Params) (ForecastReport, error) {
	req, err := s.resolve(p)
	if err != nil {
		return ForecastReport{}, err
	}
	return cached(ctx, s, "forecast", req, nil, func(ctx context.Context) (ForecastReport, error) {
		return s.buildForecast(ctx, req)
	})
}

// AdvancedForecast wraps Forecast with the heuristic band.
func (s *Service) AdvancedForecast(ctx context.Context, p Params) (AdvancedForecastReport, error) {
	req, err := s.resolve(p)
	if err != nil {
		return AdvancedForecastReport{}, err
	}
	return cached(ctx, s, "forecast_advanced", req, nil, func(ctx context.Context) (AdvancedForecastReport, error) {
		base, err := s.Forecast(ctx, p)
		if err != nil {
			return AdvancedForecastReport{}, err
		}
		return advancedFrom(base), nil
	})
}

func (s *Service) buildForecast(ctx context.Context, req request) (ForecastReport, error) {
	trailing := req.window.TrailingMonths(forecastMonths)
	rows, err := s.aggregate(ctx, s.scoped(pipeline.SourceSales, req.scope, trailing).
		Bucket(pipeline.GranularityMonth, s.loc).
		Sum("revenue", pipeline.FieldTotalAmount))
	if err != nil {
		return ForecastReport{}, err
	}
	byMonth := pipeline.Index(rows)
	months := pipeline.Buckets(trailing.Start, trailing.End, pipeline.GranularityMonth, s.loc)
	historical := make([]HistoricalPoint, 0, len(months))
	for _, month := range months {
		historical = append(historical, HistoricalPoint{
			Period:  pipeline.Label(month, pipeline.GranularityMonth),
			Revenue: Round2(byMonth[month.Unix()].Float("revenue")),
		})
	}
	result := LinearForecast(seriesValues(historical))
	return ForecastReport{Revenue: result.Prediction, Trend: result.Trend, Historical: historical}, nil
}
