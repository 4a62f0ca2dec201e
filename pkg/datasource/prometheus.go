package datasource

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opscart/cloud-cost-observer/pkg/metrics"
	"github.com/opscart/cloud-cost-observer/pkg/models"
	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// Node CPU busy percentage from node-exporter, averaged or maxed over 24h at 5m resolution.
// %[1]s is the label identifying the instance, %[2]s its value.
const (
	cpuAvgQuery = `avg_over_time((100 * (1 - avg by (%[1]s) (rate(node_cpu_seconds_total{mode="idle",%[1]s="%[2]s"}[5m]))))[24h:5m])`
	cpuMaxQuery = `max_over_time((100 * (1 - avg by (%[1]s) (rate(node_cpu_seconds_total{mode="idle",%[1]s="%[2]s"}[5m]))))[24h:5m])`
)

// PrometheusUtilization reads trailing-24h CPU from Prometheus
type PrometheusUtilization struct {
	client  v1.API
	url     string
	label   string
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewPrometheusUtilization connects to url; label is the series label matching
// an instance ID (e.g. "node" or "instance_id")
func NewPrometheusUtilization(url, label string, m *metrics.Collector, logger *slog.Logger) (*PrometheusUtilization, error) {
	client, err := api.NewClient(api.Config{
		Address: url,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return newPrometheusUtilization(v1.NewAPI(client), url, label, m, logger), nil
}

func newPrometheusUtilization(client v1.API, url, label string, m *metrics.Collector, logger *slog.Logger) *PrometheusUtilization {
	if label == "" {
		label = "node"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PrometheusUtilization{client: client, url: url, label: label, metrics: m, logger: logger}
}

func (p *PrometheusUtilization) Name() string {
	return "prometheus"
}

// CPUUtilization returns nil stats when Prometheus has no series for the instance
func (p *PrometheusUtilization) CPUUtilization(ctx context.Context, _ string, instanceID string) (models.CPUStats, error) {
	avg, err := p.querySingle(ctx, fmt.Sprintf(cpuAvgQuery, p.label, instanceID))
	if err != nil {
		return models.CPUStats{}, wrapErr(p.Name(), "cpu avg query", err)
	}
	peak, err := p.querySingle(ctx, fmt.Sprintf(cpuMaxQuery, p.label, instanceID))
	if err != nil {
		return models.CPUStats{}, wrapErr(p.Name(), "cpu max query", err)
	}
	return models.CPUStats{Avg: avg, Max: peak}, nil
}

// querySingle averages the samples of an instant vector; nil when it is empty
func (p *PrometheusUtilization) querySingle(ctx context.Context, query string) (*float64, error) {
	start := time.Now()
	result, warnings, err := p.client.Query(ctx, query, time.Now())
	p.metrics.ObserveUpstream(p.Name(), "query", start, err)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	if len(warnings) > 0 {
		p.logger.Warn("prometheus query warnings", "warnings", warnings)
	}

	vector, ok := result.(model.Vector)
	if !ok || len(vector) == 0 {
		return nil, nil
	}

	sum := 0.0
	for _, sample := range vector {
		sum += float64(sample.Value)
	}
	v := sum / float64(len(vector))
	return &v, nil
}

// IsAvailable checks that Prometheus answers a trivial query
func (p *PrometheusUtilization) IsAvailable(ctx context.Context) bool {
	_, _, err := p.client.Query(ctx, "up", time.Now())
	return err == nil
}
