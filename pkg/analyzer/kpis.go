package analyzer

import (
	"fmt"
	"math"
	"time"

	"github.com/opscart/cloud-cost-observer/pkg/config"
	"github.com/opscart/cloud-cost-observer/pkg/models"
)

// BurnAnomaly reports whether the last value exceeds the series average by more
// than threshold, and by how many percent (rounded) it does.
func BurnAnomaly(values []float64, threshold float64) (bool, float64) {
	if len(values) == 0 {
		return false, 0
	}
	total := 0.0
	for _, v := range values {
		total += v
	}
	avg := total / math.Max(1, float64(len(values)))
	burn := values[len(values)-1]

	if !(burn > avg*threshold) {
		return false, 0
	}
	if avg <= 0 {
		// burn > 0 against a zero average, no finite ratio
		return true, 0
	}
	return true, math.Round((burn/avg - 1) * 100)
}

// SummarizeKpis turns a chronological daily series into headline KPIs.
// windowDays only labels the anomaly message; zero means len(series).
func SummarizeKpis(series []models.DailyCost, windowDays int, policy config.Policy, now time.Time) models.CostKpis {
	kpis := models.CostKpis{
		LastUpdated: now.UTC(),
		Series7d:    make([]models.DailyCost, 0, len(series)),
	}

	if len(series) == 0 {
		kpis.Efficiency = &models.Efficiency{Estimate: true}
		return kpis
	}

	// every figure derives from the cent-rounded points so totals match the series
	values := make([]float64, len(series))
	for i, point := range series {
		values[i] = RoundCents(dailyAmount(point.CostUsd))
		kpis.Series7d = append(kpis.Series7d, models.DailyCost{
			Date:    point.Date,
			CostUsd: values[i],
		})
	}

	total := 0.0
	for _, v := range values {
		total += v
	}
	total = RoundCents(total)
	burn := values[len(values)-1]
	projected := RoundCents(burn * policy.ProjectionDays)

	kpis.TotalCostUsd = total
	kpis.DailyBurnUsd = burn
	kpis.ProjectedMonthlyUsd = projected

	if windowDays <= 0 {
		windowDays = len(series)
	}
	if present, pct := BurnAnomaly(values, policy.AnomalyThreshold); present {
		kpis.Anomaly = models.Anomaly{
			Present: true,
			Message: fmt.Sprintf("%.0f%% above %d-day average", pct, windowDays),
		}
	}

	kpis.Efficiency = estimateEfficiency(values, total, projected, policy)

	if n := len(values); n >= 2 && values[n-2] > 0 {
		change := roundPlaces((values[n-1]/values[n-2]-1)*100, 1)
		kpis.DayOverDayPercent = &change
	}

	return kpis
}

// estimateEfficiency derives waste, utilization and savings from the spread of daily costs.
// Steadier spend reads as better utilized.
func estimateEfficiency(values []float64, total, projected float64, policy config.Policy) *models.Efficiency {
	nv := NormalizedVariance(values)

	wastePercent := policy.WasteBasePercent + nv*policy.WasteVarianceSpan
	savingsPercent := wastePercent * policy.SavingsRealization
	utilization := clamp(100-nv*100, policy.UtilizationFloor, 100)

	return &models.Efficiency{
		WasteEstimateUsd:          RoundCents(total * wastePercent),
		WasteEstimatePercent:      roundPlaces(wastePercent, 4),
		UtilizationScore:          RoundCents(utilization),
		SavingsOpportunityUsd:     RoundCents(projected * savingsPercent),
		SavingsOpportunityPercent: roundPlaces(savingsPercent, 4),
		Estimate:                  true,
	}
}
