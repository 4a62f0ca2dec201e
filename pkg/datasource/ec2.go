package datasource

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/opscart/cloud-cost-observer/pkg/converter"
	"github.com/opscart/cloud-cost-observer/pkg/metrics"
	"github.com/opscart/cloud-cost-observer/pkg/models"
)

// EC2ClientFactory returns a DescribeInstances client bound to region
type EC2ClientFactory func(region string) ec2.DescribeInstancesAPIClient

// EC2Inventory lists instances with DescribeInstances
type EC2Inventory struct {
	newClient EC2ClientFactory
	regions   []string
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// NewEC2Inventory builds an inventory; regions is what "all" expands to
func NewEC2Inventory(newClient EC2ClientFactory, regions []string, m *metrics.Collector, logger *slog.Logger) *EC2Inventory {
	if logger == nil {
		logger = slog.Default()
	}
	return &EC2Inventory{newClient: newClient, regions: regions, metrics: m, logger: logger}
}

func (e *EC2Inventory) Name() string {
	return "ec2"
}

// Regions returns the regions covered by "all"
func (e *EC2Inventory) Regions() []string {
	return e.regions
}

func (e *EC2Inventory) ListInstances(ctx context.Context, region string) ([]models.InstanceDescriptor, error) {
	if region == RegionAll {
		var all []models.InstanceDescriptor
		for _, r := range e.regions {
			instances, err := e.ListInstances(ctx, r)
			if err != nil {
				return nil, err
			}
			all = append(all, instances...)
		}
		return all, nil
	}

	paginator := ec2.NewDescribeInstancesPaginator(e.newClient(region), &ec2.DescribeInstancesInput{})

	var instances []models.InstanceDescriptor
	for paginator.HasMorePages() {
		start := time.Now()
		page, err := paginator.NextPage(ctx)
		e.metrics.ObserveUpstream(e.Name(), "DescribeInstances", start, err)
		if err != nil {
			return nil, wrapErr(e.Name(), "DescribeInstances "+region, err)
		}
		for _, reservation := range page.Reservations {
			for _, inst := range reservation.Instances {
				instances = append(instances, converter.EC2Instance(inst, region))
			}
		}
	}

	e.logger.Debug("listed instances", "region", region, "count", len(instances))
	return instances, nil
}
