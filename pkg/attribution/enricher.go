// Package attribution groups cost by a dimension and enriches the buckets
// with trend, priority and anomaly information.
package attribution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opscart/cloud-cost-observer/pkg/analyzer"
	"github.com/opscart/cloud-cost-observer/pkg/config"
	"github.com/opscart/cloud-cost-observer/pkg/datasource"
	"github.com/opscart/cloud-cost-observer/pkg/models"
	"golang.org/x/sync/errgroup"
)

// DefaultDays is the window used when a request doesn't give one
const DefaultDays = 7

// Request describes one attribution query
type Request struct {
	// Dimension is matched case-insensitively; unknown names fall back to REGION
	Dimension string
	Days      int
	Compare   bool
	// Limit truncates the bucket list for display; 0 keeps all
	Limit int
}

// Enricher produces CostAttribution payloads
type Enricher struct {
	handlers map[models.Dimension]handler
	policy   config.Policy
	logger   *slog.Logger
	now      func() time.Time
}

func NewEnricher(billing datasource.BillingSource, org datasource.OrgTagSource, policy config.Policy, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{
		handlers: buildHandlers(billing, org),
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

// Attribute groups the last req.Days days of cost by req.Dimension
func (e *Enricher) Attribute(ctx context.Context, req Request) (*models.CostAttribution, error) {
	dim, ok := models.ParseDimension(req.Dimension)
	if !ok {
		e.logger.Warn("unknown attribution dimension, using default",
			"requested", req.Dimension, "dimension", dim)
	}
	days := req.Days
	if days <= 0 {
		days = DefaultDays
	}

	h := e.handlers[dim]
	period := models.LookbackPeriod(e.now(), days)

	var current, previous *sourceResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := h.fetch(gctx, period)
		if err != nil {
			return fmt.Errorf("failed to fetch %s attribution: %w", dim, err)
		}
		current = res
		return nil
	})
	if req.Compare {
		g.Go(func() error {
			res, err := h.fetch(gctx, period.Previous())
			if err != nil {
				return fmt.Errorf("failed to fetch previous %s attribution: %w", dim, err)
			}
			previous = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	agg := analyzer.Aggregate(current.Records, current.Total)
	out := &models.CostAttribution{
		Dimension:         dim,
		TimeRange:         period.TimeRange(),
		TotalCostUsd:      agg.TotalCostUsd,
		AttributedCostUsd: agg.AttributedCostUsd,
		Buckets:           agg.Buckets,
		UnaccountedUsd:    agg.UnaccountedUsd,
	}

	if h.organizational {
		e.applySyntheticAttribution(out)
		e.annotate(out, agg.Daily, current.Facts)
	}

	out.Anomalies = e.detectAnomalies(out, agg.Daily, h)

	if previous != nil {
		out.Comparison = compare(period.Previous(), previous, out.TotalCostUsd)
	}

	if req.Limit > 0 && len(out.Buckets) > req.Limit {
		out.Buckets = out.Buckets[:req.Limit]
	}

	return out, nil
}

// applySyntheticAttribution scales bucket costs so that only a fixed fraction
// of the total counts as attributed
func (e *Enricher) applySyntheticAttribution(out *models.CostAttribution) {
	out.Synthetic = true
	if len(out.Buckets) == 0 || out.AttributedCostUsd <= 0 {
		out.AttributedCostUsd = 0
		out.UnaccountedUsd = analyzer.Unaccounted(out.TotalCostUsd, 0)
		return
	}

	target := analyzer.RoundCents(out.TotalCostUsd * e.policy.SyntheticAttributionFraction)
	factor := target / out.AttributedCostUsd
	for i := range out.Buckets {
		out.Buckets[i].TotalCostUsd = analyzer.RoundCents(out.Buckets[i].TotalCostUsd * factor)
	}
	analyzer.SortBuckets(out.Buckets)

	out.AttributedCostUsd = analyzer.SumBuckets(out.Buckets)
	out.UnaccountedUsd = analyzer.Unaccounted(out.TotalCostUsd, out.AttributedCostUsd)
}

// annotate attaches trend, facts and priority to organizational buckets
func (e *Enricher) annotate(out *models.CostAttribution, daily map[string][]float64, facts map[string]datasource.BucketFacts) {
	for i := range out.Buckets {
		b := &out.Buckets[i]
		f := facts[b.Key]

		b.Trend = analyzer.CalculateTrend(daily[b.Key], e.policy.TrendThresholdPercent).Direction
		b.InstanceCount = f.InstanceCount
		b.CPUHours = f.CPUHours

		share := 0.0
		if out.TotalCostUsd > 0 {
			share = analyzer.RoundTo(b.TotalCostUsd/out.TotalCostUsd*100, 1)
		}
		priority := f.Priority
		if priority == "" {
			priority = e.priorityForShare(share)
		}
		b.Metadata = &models.BucketMetadata{
			Priority:     priority,
			Owner:        f.Owner,
			SharePercent: share,
			Labels:       f.Labels,
		}
	}
}

func (e *Enricher) priorityForShare(share float64) models.Priority {
	switch {
	case share >= e.policy.HighPrioritySharePercent:
		return models.PriorityHigh
	case share >= e.policy.MediumPrioritySharePercent:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

// detectAnomalies flags buckets whose last day spikes above their own average,
// and for organizational dimensions the spend that carries no tag at all
func (e *Enricher) detectAnomalies(out *models.CostAttribution, daily map[string][]float64, h handler) []models.AttributionAnomaly {
	var anomalies []models.AttributionAnomaly

	for _, b := range out.Buckets {
		series := daily[b.Key]
		present, pct := analyzer.BurnAnomaly(series, e.policy.AnomalyThreshold)
		if !present {
			continue
		}
		anomalies = append(anomalies, models.AttributionAnomaly{
			Key:               b.Key,
			Description:       fmt.Sprintf("%s daily spend is %.0f%% above its %d-day average", b.Key, pct, len(series)),
			RecommendedAction: h.action,
			Severity:          spikeSeverity(pct),
		})
	}

	if h.organizational {
		for _, b := range out.Buckets {
			if b.Key != models.UnknownKey || out.TotalCostUsd <= 0 {
				continue
			}
			share := b.TotalCostUsd / out.TotalCostUsd * 100
			severity := models.SeverityLow
			if share >= e.policy.MediumPrioritySharePercent {
				severity = models.SeverityMedium
			}
			anomalies = append(anomalies, models.AttributionAnomaly{
				Key:               b.Key,
				Description:       fmt.Sprintf("%.1f%% of %s spend is untagged", share, out.Dimension),
				RecommendedAction: fmt.Sprintf("Tag the untagged resources with their %s", out.Dimension),
				Severity:          severity,
			})
		}
	}

	return anomalies
}

func spikeSeverity(pct float64) models.Severity {
	switch {
	case pct >= 100:
		return models.SeverityHigh
	case pct >= 50:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// compare builds the period-over-period block. The previous total goes through
// the same aggregation so both sides are measured alike.
func compare(prevPeriod models.Period, previous *sourceResult, currentTotal float64) *models.Comparison {
	prevTotal := analyzer.Aggregate(previous.Records, previous.Total).TotalCostUsd

	change := 0.0
	if prevTotal > 0 {
		change = analyzer.RoundTo((currentTotal-prevTotal)/prevTotal*100, 1)
	}

	return &models.Comparison{
		PreviousTimeRange:    prevPeriod.TimeRange(),
		PreviousTotalCostUsd: prevTotal,
		PercentChange:        change,
	}
}

// SetClock replaces the time source used to anchor lookback windows
func (e *Enricher) SetClock(now func() time.Time) {
	e.now = now
}
