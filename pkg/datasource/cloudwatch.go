package datasource

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/opscart/cloud-cost-observer/pkg/metrics"
	"github.com/opscart/cloud-cost-observer/pkg/models"
	"golang.org/x/time/rate"
)

// CloudWatchAPI is the slice of the CloudWatch client we use
type CloudWatchAPI interface {
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
}

// CloudWatchClientFactory returns a client bound to region
type CloudWatchClientFactory func(region string) CloudWatchAPI

const (
	utilizationWindow = 24 * time.Hour
	cpuPeriodSeconds  = 300
)

// CloudWatchUtilization reads EC2 CPUUtilization over the trailing 24h
type CloudWatchUtilization struct {
	newClient CloudWatchClientFactory
	limiter   *rate.Limiter
	metrics   *metrics.Collector
	now       func() time.Time
}

// NewCloudWatchUtilization paces calls at rps requests per second (0 = unlimited)
func NewCloudWatchUtilization(newClient CloudWatchClientFactory, rps float64, m *metrics.Collector) *CloudWatchUtilization {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &CloudWatchUtilization{
		newClient: newClient,
		limiter:   rate.NewLimiter(limit, 1),
		metrics:   m,
		now:       time.Now,
	}
}

func (c *CloudWatchUtilization) Name() string {
	return "cloudwatch"
}

// CPUUtilization returns the mean of 5-minute averages and the highest maximum.
// Both are nil when the window has no datapoints.
func (c *CloudWatchUtilization) CPUUtilization(ctx context.Context, region, instanceID string) (models.CPUStats, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return models.CPUStats{}, err
	}

	end := c.now()
	input := &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String("AWS/EC2"),
		MetricName: aws.String("CPUUtilization"),
		Dimensions: []cwtypes.Dimension{{
			Name:  aws.String("InstanceId"),
			Value: aws.String(instanceID),
		}},
		StartTime:  aws.Time(end.Add(-utilizationWindow)),
		EndTime:    aws.Time(end),
		Period:     aws.Int32(cpuPeriodSeconds),
		Statistics: []cwtypes.Statistic{cwtypes.StatisticAverage, cwtypes.StatisticMaximum},
	}

	start := time.Now()
	out, err := c.newClient(region).GetMetricStatistics(ctx, input)
	c.metrics.ObserveUpstream(c.Name(), "GetMetricStatistics", start, err)
	if err != nil {
		return models.CPUStats{}, wrapErr(c.Name(), "GetMetricStatistics "+instanceID, err)
	}

	return cpuStatsFromDatapoints(out.Datapoints), nil
}

func cpuStatsFromDatapoints(points []cwtypes.Datapoint) models.CPUStats {
	if len(points) == 0 {
		return models.CPUStats{}
	}
	sum, peak := 0.0, 0.0
	for _, p := range points {
		sum += aws.ToFloat64(p.Average)
		if m := aws.ToFloat64(p.Maximum); m > peak {
			peak = m
		}
	}
	avg := sum / float64(len(points))
	return models.CPUStats{Avg: &avg, Max: &peak}
}
