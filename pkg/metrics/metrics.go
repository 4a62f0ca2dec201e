package metrics

import (
	"net/http"
	"time"

	"github.com/opscart/cloud-cost-observer/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cost_observer"

// Collector owns the process metrics. A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	dailyBurn        prometheus.Gauge
	projectedMonthly prometheus.Gauge
	anomalyPresent   prometheus.Gauge
	wasteIndicators  *prometheus.GaugeVec
	unaccounted      *prometheus.GaugeVec
}

// New registers all collectors on a fresh registry
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Calls to billing, inventory and metrics providers.",
		}, []string{"source", "op", "outcome"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of provider calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		dailyBurn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "daily_burn_usd",
			Help:      "Most recent full day of spend.",
		}),
		projectedMonthly: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "projected_monthly_usd",
			Help:      "Daily burn projected linearly over a month.",
		}),
		anomalyPresent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "anomaly_present",
			Help:      "1 when the daily burn exceeds the anomaly threshold.",
		}),
		wasteIndicators: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "waste_indicators",
			Help:      "Waste indicators on the last instance scan, by severity.",
		}, []string{"severity"}),
		unaccounted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unaccounted_usd",
			Help:      "Cost not attributed to any bucket, by dimension.",
		}, []string{"dimension"}),
	}

	c.registry.MustRegister(
		c.upstreamRequests,
		c.upstreamDuration,
		c.dailyBurn,
		c.projectedMonthly,
		c.anomalyPresent,
		c.wasteIndicators,
		c.unaccounted,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveUpstream records one provider call that started at start
func (c *Collector) ObserveUpstream(source, op string, start time.Time, err error) {
	if c == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.upstreamRequests.WithLabelValues(source, op, outcome).Inc()
	c.upstreamDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
}

// RecordKpis publishes the headline figures
func (c *Collector) RecordKpis(k models.CostKpis) {
	if c == nil {
		return
	}
	c.dailyBurn.Set(k.DailyBurnUsd)
	c.projectedMonthly.Set(k.ProjectedMonthlyUsd)
	if k.Anomaly.Present {
		c.anomalyPresent.Set(1)
	} else {
		c.anomalyPresent.Set(0)
	}
}

// RecordAttribution publishes the unaccounted remainder for a dimension
func (c *Collector) RecordAttribution(a models.CostAttribution) {
	if c == nil {
		return
	}
	c.unaccounted.WithLabelValues(a.Dimension.String()).Set(a.UnaccountedUsd)
}

// RecordInstances publishes waste indicator counts from one scan
func (c *Collector) RecordInstances(rows []models.InstanceRow) {
	if c == nil {
		return
	}
	counts := map[models.Severity]float64{
		models.SeverityLow:    0,
		models.SeverityMedium: 0,
		models.SeverityHigh:   0,
	}
	for _, row := range rows {
		for _, w := range row.WasteIndicators {
			counts[w.Severity]++
		}
	}
	for sev, n := range counts {
		c.wasteIndicators.WithLabelValues(string(sev)).Set(n)
	}
}
