package analyzer

import (
	"math"

	"github.com/opscart/cloud-cost-observer/pkg/models"
)

// SeriesTrend is the least-squares fit of a daily cost series
type SeriesTrend struct {
	// Fitted change across the whole window, as a percentage of the mean
	ChangePercent float64
	Confidence    float64
	Direction     models.Trend
}

// CalculateTrend fits a line through values (one per day) and classifies its direction.
// Fewer than two points, or a non-positive mean, is stable.
func CalculateTrend(values []float64, thresholdPercent float64) SeriesTrend {
	if len(values) < 2 {
		return SeriesTrend{Direction: models.TrendStable}
	}

	x := make([]float64, len(values))
	for i := range values {
		x[i] = float64(i)
	}

	slope, _, r2 := linearRegression(x, values)

	mean := calculateAverage(values)
	if mean <= 0 {
		return SeriesTrend{Direction: models.TrendStable}
	}

	change := slope * float64(len(values)-1) / mean * 100.0

	direction := models.TrendStable
	switch {
	case change > thresholdPercent:
		direction = models.TrendIncreasing
	case change < -thresholdPercent:
		direction = models.TrendDecreasing
	}

	return SeriesTrend{
		ChangePercent: roundPlaces(change, 1),
		Confidence:    r2,
		Direction:     direction,
	}
}

// linearRegression performs simple linear regression
// Returns: slope, intercept, R² (coefficient of determination)
func linearRegression(x, y []float64) (slope, intercept, r2 float64) {
	n := float64(len(x))

	if n == 0 {
		return 0, 0, 0
	}

	meanX := calculateAverage(x)
	meanY := calculateAverage(y)

	numerator := 0.0
	denominator := 0.0

	for i := 0; i < len(x); i++ {
		numerator += (x[i] - meanX) * (y[i] - meanY)
		denominator += (x[i] - meanX) * (x[i] - meanX)
	}

	if denominator == 0 {
		return 0, meanY, 0
	}

	slope = numerator / denominator
	intercept = meanY - slope*meanX

	ssTotal := 0.0
	ssRes := 0.0

	for i := 0; i < len(x); i++ {
		predicted := slope*x[i] + intercept
		ssRes += (y[i] - predicted) * (y[i] - predicted)
		ssTotal += (y[i] - meanY) * (y[i] - meanY)
	}

	if ssTotal == 0 {
		r2 = 0
	} else {
		r2 = 1.0 - (ssRes / ssTotal)
	}

	r2 = math.Max(0, math.Min(1, r2))

	return slope, intercept, r2
}
