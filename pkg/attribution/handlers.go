package attribution

import (
	"context"
	"errors"
	"fmt"

	"github.com/opscart/cloud-cost-observer/pkg/datasource"
	"github.com/opscart/cloud-cost-observer/pkg/models"
)

// ErrNoOrgSource is returned for organizational dimensions when no lookup is configured
var ErrNoOrgSource = errors.New("no organizational allocation source configured")

// sourceResult is the common shape every dimension handler returns
type sourceResult struct {
	Records []models.CostRecord
	Total   float64
	Facts   map[string]datasource.BucketFacts
}

// handler resolves one dimension
type handler struct {
	organizational bool
	// recommended action attached to anomalies flagged on this dimension
	action string
	fetch  func(ctx context.Context, period models.Period) (*sourceResult, error)
}

var recommendedActions = map[models.Dimension]string{
	models.DimensionRegion:       "Review workload placement and consolidate into fewer regions",
	models.DimensionInstanceType: "Right-size the instance family or cover it with Savings Plans",
	models.DimensionUsageType:    "Inspect the usage type line items for unexpected transfer or storage growth",
	models.DimensionAZ:           "Check cross-AZ data transfer and rebalance the subnets",
	models.DimensionTeam:         "Review the spend with the team owner and set a budget alert",
	models.DimensionProject:      "Confirm the project budget and stop idle resources",
	models.DimensionResearcher:   "Check for long-running experiments left idle",
	models.DimensionJobType:      "Move batch jobs to spot capacity or off-peak schedules",
}

// buildHandlers returns the strategy table: one handler per recognized dimension
func buildHandlers(billing datasource.BillingSource, org datasource.OrgTagSource) map[models.Dimension]handler {
	handlers := make(map[models.Dimension]handler, len(models.AllDimensions))
	for _, dim := range models.AllDimensions {
		dim := dim
		if dim.IsOrganizational() {
			handlers[dim] = handler{
				organizational: true,
				action:         recommendedActions[dim],
				fetch:          orgFetcher(org, dim),
			}
			continue
		}
		handlers[dim] = handler{
			action: recommendedActions[dim],
			fetch:  nativeFetcher(billing, dim),
		}
	}
	return handlers
}

func nativeFetcher(billing datasource.BillingSource, dim models.Dimension) func(context.Context, models.Period) (*sourceResult, error) {
	return func(ctx context.Context, period models.Period) (*sourceResult, error) {
		if billing == nil {
			return nil, fmt.Errorf("no billing source configured for %s", dim)
		}
		res, err := billing.CostAndUsage(ctx, datasource.BillingQuery{Period: period, Dimension: dim})
		if err != nil {
			return nil, err
		}
		return &sourceResult{Records: res.Records, Total: res.Total}, nil
	}
}

func orgFetcher(org datasource.OrgTagSource, dim models.Dimension) func(context.Context, models.Period) (*sourceResult, error) {
	return func(ctx context.Context, period models.Period) (*sourceResult, error) {
		if org == nil {
			return nil, fmt.Errorf("%s: %w", dim, ErrNoOrgSource)
		}
		set, err := org.Allocations(ctx, dim, period)
		if err != nil {
			return nil, err
		}
		return &sourceResult{Records: set.Records, Total: set.Total, Facts: set.Facts}, nil
	}
}
