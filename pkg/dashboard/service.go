// Package dashboard wires the sources to the analysis core and produces the
// three dashboard payloads.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/opscart/cloud-cost-observer/pkg/analyzer"
	"github.com/opscart/cloud-cost-observer/pkg/apierror"
	"github.com/opscart/cloud-cost-observer/pkg/attribution"
	"github.com/opscart/cloud-cost-observer/pkg/config"
	"github.com/opscart/cloud-cost-observer/pkg/converter"
	"github.com/opscart/cloud-cost-observer/pkg/datasource"
	"github.com/opscart/cloud-cost-observer/pkg/metrics"
	"github.com/opscart/cloud-cost-observer/pkg/models"
	"github.com/opscart/cloud-cost-observer/pkg/pricing"
	"golang.org/x/sync/errgroup"
)

// MaxDays bounds the window a caller may ask for
const MaxDays = 90

// Sources are the collaborators a Service reads from
type Sources struct {
	Billing     datasource.BillingSource
	Inventory   datasource.InventorySource
	Utilization datasource.UtilizationSource
	OrgTags     datasource.OrgTagSource
	Pricing     pricing.Provider
}

// Options tune request handling
type Options struct {
	// DefaultRegion answers instance queries that name no region
	DefaultRegion string
	// AllowedRegions restricts instance queries; "all" fans out over them
	AllowedRegions []string
	// Concurrency bounds per-instance utilization and price lookups
	Concurrency int
}

// Service answers dashboard queries. It holds no state between requests.
type Service struct {
	sources  Sources
	policy   config.Policy
	opts     Options
	enricher *attribution.Enricher
	metrics  *metrics.Collector
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(sources Sources, policy config.Policy, opts Options, m *metrics.Collector, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.DefaultRegion == "" {
		opts.DefaultRegion = config.ResolveRegion("")
	}
	return &Service{
		sources:  sources,
		policy:   policy,
		opts:     opts,
		enricher: attribution.NewEnricher(sources.Billing, sources.OrgTags, policy, logger),
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock replaces the time source; the enricher shares it
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.enricher.SetClock(now)
}

func validateDays(days int) (int, error) {
	if days == 0 {
		return attribution.DefaultDays, nil
	}
	if days < 1 || days > MaxDays {
		return 0, apierror.InvalidRequest("days must be between 1 and %d, got %d", MaxDays, days)
	}
	return days, nil
}

// CostKpis summarizes the last days days of spend
func (s *Service) CostKpis(ctx context.Context, days int) (*models.CostKpis, error) {
	days, err := validateDays(days)
	if err != nil {
		return nil, err
	}

	now := s.now()
	period := models.LookbackPeriod(now, days)
	res, err := s.sources.Billing.CostAndUsage(ctx, datasource.BillingQuery{Period: period})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch daily cost: %w", err)
	}

	byDate := make(map[string]float64, len(res.Daily))
	for _, d := range res.Daily {
		byDate[d.Date] += d.CostUsd
	}
	series := converter.FillDailyGaps(period, byDate)

	kpis := analyzer.SummarizeKpis(series, days, s.policy, now)
	s.metrics.RecordKpis(kpis)

	s.logger.Debug("computed cost kpis", "days", days, "total", kpis.TotalCostUsd, "anomaly", kpis.Anomaly.Present)
	return &kpis, nil
}

// CostAttribution groups spend by the requested dimension
func (s *Service) CostAttribution(ctx context.Context, req attribution.Request) (*models.CostAttribution, error) {
	days, err := validateDays(req.Days)
	if err != nil {
		return nil, err
	}
	if req.Limit < 0 {
		return nil, apierror.InvalidRequest("limit must not be negative")
	}
	req.Days = days

	out, err := s.enricher.Attribute(ctx, req)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordAttribution(*out)
	return out, nil
}

// Instances lists instances with utilization, price and waste indicators.
// Any fetch failure fails the whole request.
func (s *Service) Instances(ctx context.Context, region string) (*models.InstancesPayload, error) {
	regions, err := s.targetRegions(region)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var descriptors []models.InstanceDescriptor

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range regions {
		r := r
		g.Go(func() error {
			found, err := s.sources.Inventory.ListInstances(gctx, r)
			if err != nil {
				return fmt.Errorf("failed to list instances in %s: %w", r, err)
			}
			mu.Lock()
			descriptors = append(descriptors, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rows := make([]models.InstanceRow, len(descriptors))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, desc := range descriptors {
		i, desc := i, desc
		g.Go(func() error {
			row, err := s.instanceRow(gctx, desc)
			if err != nil {
				return err
			}
			rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Region != rows[j].Region {
			return rows[i].Region < rows[j].Region
		}
		return rows[i].InstanceID < rows[j].InstanceID
	})

	s.metrics.RecordInstances(rows)
	s.logger.Debug("listed instances", "regions", regions, "count", len(rows))
	return &models.InstancesPayload{Instances: rows}, nil
}

// targetRegions expands a request region into the regions to query
func (s *Service) targetRegions(region string) ([]string, error) {
	if region == "" {
		region = s.opts.DefaultRegion
	}

	if region == datasource.RegionAll {
		if len(s.opts.AllowedRegions) > 0 {
			return s.opts.AllowedRegions, nil
		}
		// the inventory knows what "all" means for its backend
		return []string{datasource.RegionAll}, nil
	}

	if len(s.opts.AllowedRegions) > 0 && !contains(s.opts.AllowedRegions, region) {
		return nil, apierror.InvalidRequest("region %q is not in the allowed regions %v", region, s.opts.AllowedRegions)
	}
	return []string{region}, nil
}

func (s *Service) instanceRow(ctx context.Context, desc models.InstanceDescriptor) (models.InstanceRow, error) {
	var cpu models.CPUStats
	if desc.State == models.StateRunning && s.sources.Utilization != nil {
		stats, err := s.sources.Utilization.CPUUtilization(ctx, desc.Region, desc.InstanceID)
		if err != nil {
			return models.InstanceRow{}, fmt.Errorf("failed to fetch CPU for %s: %w", desc.InstanceID, err)
		}
		cpu = stats
	}

	var price *float64
	if s.sources.Pricing != nil {
		p, err := s.sources.Pricing.HourlyPrice(ctx, desc.Region, desc.InstanceType)
		if err != nil {
			// the price column is nullable; a failed lookup leaves it empty
			s.logger.Warn("price lookup failed", "instanceType", desc.InstanceType, "region", desc.Region, "error", err)
		} else {
			price = p
		}
	}

	row := converter.InstanceRow(desc, cpu, price)
	row.WasteIndicators = analyzer.DetectWaste(desc.State, cpu.Avg, s.policy)
	return row, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
