package analyzer

import (
	"math"
	"sort"
	"strings"

	"github.com/opscart/cloud-cost-observer/pkg/models"
	"github.com/samber/lo"
)

// AggregateResult is the dimension-grouped summary of a set of cost records
type AggregateResult struct {
	Buckets           []models.AttributionBucket
	TotalCostUsd      float64
	AttributedCostUsd float64
	UnaccountedUsd    float64

	// Daily holds each key's costs in time-bucket order, zero where a key had no record
	Daily map[string][]float64
}

// Aggregate groups records by dimension key and computes the unaccounted remainder
// against the provider's reported total. Missing keys become UNKNOWN, non-finite
// amounts count as zero, and a bucket never goes below zero. Negative records
// are credits and net against their own key before that floor applies.
// The reported total is never below the attributed sum.
func Aggregate(records []models.CostRecord, providerTotal float64) AggregateResult {
	var order []string
	sums := make(map[string]float64)

	days := lo.Uniq(lo.Map(records, func(r models.CostRecord, _ int) int64 {
		return r.Period.Start.Unix()
	}))
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	dayIndex := make(map[int64]int, len(days))
	for i, d := range days {
		dayIndex[d] = i
	}

	daily := make(map[string][]float64)
	for _, r := range records {
		key := strings.TrimSpace(r.Key)
		if key == "" {
			key = models.UnknownKey
		}
		if _, seen := sums[key]; !seen {
			order = append(order, key)
			daily[key] = make([]float64, len(days))
		}
		amount := sanitizeAmount(r.AmountUsd)
		sums[key] += amount
		daily[key][dayIndex[r.Period.Start.Unix()]] += amount
	}

	buckets := make([]models.AttributionBucket, 0, len(order))
	for _, key := range order {
		buckets = append(buckets, models.AttributionBucket{
			Key:          key,
			TotalCostUsd: RoundCents(math.Max(0, sums[key])),
		})
	}
	SortBuckets(buckets)

	attributed := SumBuckets(buckets)
	total := RoundCents(math.Max(0, sanitizeAmount(providerTotal)))

	return AggregateResult{
		Buckets:           buckets,
		TotalCostUsd:      math.Max(total, attributed),
		AttributedCostUsd: attributed,
		UnaccountedUsd:    Unaccounted(total, attributed),
		Daily:             daily,
	}
}

// SortBuckets orders buckets by cost descending, keeping input order on ties
func SortBuckets(buckets []models.AttributionBucket) {
	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].TotalCostUsd > buckets[j].TotalCostUsd
	})
}

// SumBuckets totals bucket costs, rounded to cents
func SumBuckets(buckets []models.AttributionBucket) float64 {
	return RoundCents(lo.SumBy(buckets, func(b models.AttributionBucket) float64 {
		return b.TotalCostUsd
	}))
}

// Unaccounted is max(0, total - attributed), rounded to cents
func Unaccounted(total, attributed float64) float64 {
	return RoundCents(math.Max(0, total-attributed))
}
