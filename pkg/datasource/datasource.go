package datasource

import (
	"context"
	"fmt"

	"github.com/opscart/cloud-cost-observer/pkg/models"
)

// RegionAll asks inventory sources for every region they cover
const RegionAll = "all"

// BillingQuery selects a range of daily cost data.
// Dimension groups natively; TagKey groups by a cost allocation tag instead.
// Neither set means an ungrouped daily series.
type BillingQuery struct {
	Period    models.Period
	Dimension models.Dimension
	TagKey    string
}

// BillingResult holds the records and the provider's own totals for a query
type BillingResult struct {
	Records []models.CostRecord
	// One entry per day of the query period, in order
	Daily []models.DailyCost
	Total float64
}

// BillingSource fetches time-bucketed cost records
type BillingSource interface {
	CostAndUsage(ctx context.Context, q BillingQuery) (*BillingResult, error)
	Name() string
}

// InventorySource lists compute instances in a region
type InventorySource interface {
	ListInstances(ctx context.Context, region string) ([]models.InstanceDescriptor, error)
	Name() string
}

// UtilizationSource returns trailing-24h CPU stats for one instance
type UtilizationSource interface {
	CPUUtilization(ctx context.Context, region, instanceID string) (models.CPUStats, error)
	Name() string
}

// BucketFacts are the organizational facts a lookup knows about one key
type BucketFacts struct {
	InstanceCount *int
	CPUHours      *float64
	Priority      models.Priority
	Owner         string
	Labels        map[string]string
}

// AllocationSet is the bucket-shaped answer of an organizational lookup
type AllocationSet struct {
	Records []models.CostRecord
	Total   float64
	Facts   map[string]BucketFacts
}

// OrgTagSource resolves organizational dimensions the billing provider can't group by
type OrgTagSource interface {
	Allocations(ctx context.Context, dim models.Dimension, period models.Period) (*AllocationSet, error)
	Name() string
}

// SourceError wraps a provider failure with where it happened
type SourceError struct {
	Source string
	Op     string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Source, e.Op, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

func wrapErr(source, op string, err error) error {
	if err == nil {
		return nil
	}
	return &SourceError{Source: source, Op: op, Err: err}
}
