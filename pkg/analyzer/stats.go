package analyzer

import (
	"math"

	"github.com/shopspring/decimal"
)

// calculateAverage computes the mean of values
func calculateAverage(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

// populationVariance is the mean squared deviation from mean
func populationVariance(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sumSquaredDiff := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}

	return sumSquaredDiff / float64(len(values))
}

// NormalizedVariance is variance/mean², clamped to [0, 1].
// A zero mean yields zero.
func NormalizedVariance(values []float64) float64 {
	mean := calculateAverage(values)
	if mean <= 0 {
		return 0
	}
	return clamp(populationVariance(values, mean)/(mean*mean), 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RoundCents rounds half away from zero to 2 decimal places
func RoundCents(v float64) float64 {
	return roundPlaces(v, 2)
}

func roundPlaces(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// sanitizeAmount treats missing or non-finite amounts as zero
func sanitizeAmount(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// dailyAmount is a day's net spend. Credits can net a day below zero; the
// KPI series treats that day as zero spend.
func dailyAmount(v float64) float64 {
	return math.Max(0, sanitizeAmount(v))
}

// RoundTo rounds half away from zero to places decimals; non-finite values become 0
func RoundTo(v float64, places int32) float64 {
	return roundPlaces(v, places)
}
