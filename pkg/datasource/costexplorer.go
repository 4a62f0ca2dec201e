package datasource

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/opscart/cloud-cost-observer/pkg/converter"
	"github.com/opscart/cloud-cost-observer/pkg/metrics"
	"github.com/opscart/cloud-cost-observer/pkg/models"
)

// CostExplorerAPI is the slice of the Cost Explorer client we use
type CostExplorerAPI interface {
	GetCostAndUsage(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error)
}

// ceDimensions maps natively groupable dimensions to Cost Explorer keys
var ceDimensions = map[models.Dimension]cetypes.Dimension{
	models.DimensionRegion:       cetypes.DimensionRegion,
	models.DimensionInstanceType: cetypes.DimensionInstanceType,
	models.DimensionUsageType:    cetypes.DimensionUsageType,
	models.DimensionAZ:           cetypes.DimensionAz,
}

// CostExplorerSource is the AWS Cost Explorer billing source
type CostExplorerSource struct {
	client  CostExplorerAPI
	metrics *metrics.Collector
	logger  *slog.Logger
}

func NewCostExplorerSource(client CostExplorerAPI, m *metrics.Collector, logger *slog.Logger) *CostExplorerSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CostExplorerSource{client: client, metrics: m, logger: logger}
}

func (s *CostExplorerSource) Name() string {
	return "costexplorer"
}

// CostAndUsage runs a DAILY UnblendedCost query, following NextPageToken to the end
func (s *CostExplorerSource) CostAndUsage(ctx context.Context, q BillingQuery) (*BillingResult, error) {
	input := &costexplorer.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(q.Period.Start.Format(models.DateLayout)),
			End:   aws.String(q.Period.End.Format(models.DateLayout)),
		},
		Granularity: cetypes.GranularityDaily,
		Metrics:     []string{converter.MetricUnblendedCost},
	}

	tagGrouped := false
	switch {
	case q.TagKey != "":
		tagGrouped = true
		input.GroupBy = []cetypes.GroupDefinition{{
			Type: cetypes.GroupDefinitionTypeTag,
			Key:  aws.String(q.TagKey),
		}}
	case q.Dimension != "":
		ceDim, ok := ceDimensions[q.Dimension]
		if !ok {
			return nil, fmt.Errorf("dimension %s cannot be grouped by Cost Explorer", q.Dimension)
		}
		input.GroupBy = []cetypes.GroupDefinition{{
			Type: cetypes.GroupDefinitionTypeDimension,
			Key:  aws.String(string(ceDim)),
		}}
	}

	var results []cetypes.ResultByTime
	pages := 0
	for {
		start := time.Now()
		out, err := s.client.GetCostAndUsage(ctx, input)
		s.metrics.ObserveUpstream(s.Name(), "GetCostAndUsage", start, err)
		if err != nil {
			return nil, wrapErr(s.Name(), "GetCostAndUsage", err)
		}
		results = append(results, out.ResultsByTime...)
		pages++
		if aws.ToString(out.NextPageToken) == "" {
			break
		}
		input.NextPageToken = out.NextPageToken
	}

	flat := converter.CostExplorerResults(results, tagGrouped)
	s.logger.Debug("cost explorer query complete",
		"start", q.Period.Start.Format(models.DateLayout),
		"end", q.Period.End.Format(models.DateLayout),
		"dimension", q.Dimension,
		"tag", q.TagKey,
		"pages", pages,
		"records", len(flat.Records))

	return &BillingResult{
		Records: flat.Records,
		Daily:   converter.FillDailyGaps(q.Period, flat.Daily),
		Total:   flat.Total,
	}, nil
}
