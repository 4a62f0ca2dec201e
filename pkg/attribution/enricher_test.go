package attribution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opscart/cloud-cost-observer/pkg/config"
	"github.com/opscart/cloud-cost-observer/pkg/datasource"
	"github.com/opscart/cloud-cost-observer/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 1, 22, 15, 4, 5, 0, time.UTC)

type recordingBilling struct {
	queries []datasource.BillingQuery
	byStart map[string]*datasource.BillingResult
	err     error
}

func (r *recordingBilling) Name() string { return "recording" }

func (r *recordingBilling) CostAndUsage(_ context.Context, q datasource.BillingQuery) (*datasource.BillingResult, error) {
	r.queries = append(r.queries, q)
	if r.err != nil {
		return nil, r.err
	}
	if res, ok := r.byStart[q.Period.Start.Format(models.DateLayout)]; ok {
		return res, nil
	}
	return &datasource.BillingResult{}, nil
}

type stubOrg struct {
	set *datasource.AllocationSet
	err error
	dim models.Dimension
}

func (s *stubOrg) Name() string { return "stub-org" }

func (s *stubOrg) Allocations(_ context.Context, dim models.Dimension, _ models.Period) (*datasource.AllocationSet, error) {
	s.dim = dim
	return s.set, s.err
}

func record(day, key string, amount float64) models.CostRecord {
	start, _ := time.Parse(models.DateLayout, day)
	return models.CostRecord{Period: models.Period{Start: start, End: start.AddDate(0, 0, 1)}, Key: key, AmountUsd: amount}
}

func newTestEnricher(billing datasource.BillingSource, org datasource.OrgTagSource) *Enricher {
	e := NewEnricher(billing, org, config.DefaultPolicy(), nil)
	e.now = func() time.Time { return fixedNow }
	return e
}

func TestAttributeNativeDimension(t *testing.T) {
	billing := &recordingBilling{byStart: map[string]*datasource.BillingResult{
		"2024-01-15": {
			Records: []models.CostRecord{
				record("2024-01-15", "us-west-2", 30),
				record("2024-01-15", "us-east-1", 50),
				record("2024-01-16", "us-east-1", 20),
			},
			Total: 101.5,
		},
	}}
	e := newTestEnricher(billing, nil)

	out, err := e.Attribute(context.Background(), Request{Dimension: "region", Days: 7})
	require.NoError(t, err)

	require.Len(t, billing.queries, 1)
	assert.Equal(t, models.DimensionRegion, billing.queries[0].Dimension)

	assert.Equal(t, models.DimensionRegion, out.Dimension)
	assert.Equal(t, models.TimeRange{Start: "2024-01-15", End: "2024-01-22"}, out.TimeRange)
	assert.Equal(t, 101.5, out.TotalCostUsd)
	assert.Equal(t, 100.0, out.AttributedCostUsd)
	assert.Equal(t, 1.5, out.UnaccountedUsd)
	assert.False(t, out.Synthetic)
	require.Len(t, out.Buckets, 2)
	assert.Equal(t, "us-east-1", out.Buckets[0].Key)
	assert.Nil(t, out.Buckets[0].Metadata)
	assert.Nil(t, out.Comparison)
}

func TestAttributeUnknownDimensionFallsBack(t *testing.T) {
	billing := &recordingBilling{}
	e := newTestEnricher(billing, nil)

	out, err := e.Attribute(context.Background(), Request{Dimension: "COLOR"})
	require.NoError(t, err)

	assert.Equal(t, models.DimensionRegion, out.Dimension)
	assert.Equal(t, models.DimensionRegion, billing.queries[0].Dimension)
	// Days defaults to a week
	assert.Equal(t, "2024-01-15", out.TimeRange.Start)
	assert.NotNil(t, out.Buckets)
	assert.Empty(t, out.Buckets)
}

func TestAttributeOrganizationalDimension(t *testing.T) {
	org := &stubOrg{set: &datasource.AllocationSet{
		Records: []models.CostRecord{
			record("2024-01-15", "ml", 100),
			record("2024-01-16", "ml", 100),
			record("2024-01-15", "web", 50),
			record("2024-01-16", "web", 30),
			record("2024-01-15", models.UnknownKey, 10),
			record("2024-01-16", models.UnknownKey, 10),
		},
		Total: 300,
		Facts: map[string]datasource.BucketFacts{
			"ml": {InstanceCount: intp(4), Owner: "ml-platform"},
		},
	}}
	e := newTestEnricher(&recordingBilling{}, org)

	out, err := e.Attribute(context.Background(), Request{Dimension: "TEAM", Days: 7})
	require.NoError(t, err)

	assert.Equal(t, models.DimensionTeam, org.dim)
	assert.True(t, out.Synthetic)
	assert.Equal(t, 300.0, out.TotalCostUsd)
	assert.InDelta(t, 276, out.AttributedCostUsd, 0.011)
	assert.InDelta(t, 24, out.UnaccountedUsd, 0.011)

	sum := 0.0
	for _, b := range out.Buckets {
		sum += b.TotalCostUsd
	}
	assert.InDelta(t, out.AttributedCostUsd, sum, 1e-9)

	ml := out.Buckets[0]
	assert.Equal(t, "ml", ml.Key)
	assert.Equal(t, 4, *ml.InstanceCount)
	assert.Equal(t, models.TrendStable, ml.Trend)
	require.NotNil(t, ml.Metadata)
	assert.Equal(t, "ml-platform", ml.Metadata.Owner)
	assert.Equal(t, models.PriorityHigh, ml.Metadata.Priority)

	web := out.Buckets[1]
	assert.Equal(t, models.TrendDecreasing, web.Trend)
	assert.Nil(t, web.InstanceCount)

	unknown := out.Buckets[2]
	assert.Equal(t, models.PriorityLow, unknown.Metadata.Priority)

	require.Len(t, out.Anomalies, 1)
	assert.Equal(t, models.UnknownKey, out.Anomalies[0].Key)
	assert.Contains(t, out.Anomalies[0].Description, "untagged")
}

func TestAttributeOrganizationalEmpty(t *testing.T) {
	org := &stubOrg{set: &datasource.AllocationSet{Total: 0}}
	e := newTestEnricher(&recordingBilling{}, org)

	out, err := e.Attribute(context.Background(), Request{Dimension: "PROJECT"})
	require.NoError(t, err)

	assert.True(t, out.Synthetic)
	assert.Zero(t, out.AttributedCostUsd)
	assert.Zero(t, out.UnaccountedUsd)
	assert.Empty(t, out.Buckets)
}

func TestAttributeWithoutOrgSource(t *testing.T) {
	e := newTestEnricher(&recordingBilling{}, nil)

	_, err := e.Attribute(context.Background(), Request{Dimension: "RESEARCHER"})
	assert.ErrorIs(t, err, ErrNoOrgSource)
}

func TestAttributeComparison(t *testing.T) {
	billing := &recordingBilling{byStart: map[string]*datasource.BillingResult{
		"2024-01-15": {Records: []models.CostRecord{record("2024-01-15", "t3.micro", 110)}, Total: 110},
		"2024-01-08": {Records: []models.CostRecord{record("2024-01-08", "t3.micro", 100)}, Total: 100},
	}}
	e := newTestEnricher(billing, nil)

	out, err := e.Attribute(context.Background(), Request{Dimension: "INSTANCE_TYPE", Days: 7, Compare: true})
	require.NoError(t, err)

	require.NotNil(t, out.Comparison)
	assert.Equal(t, models.TimeRange{Start: "2024-01-08", End: "2024-01-15"}, out.Comparison.PreviousTimeRange)
	assert.Equal(t, 100.0, out.Comparison.PreviousTotalCostUsd)
	assert.Equal(t, 10.0, out.Comparison.PercentChange)
}

func TestAttributeComparisonFromZero(t *testing.T) {
	billing := &recordingBilling{byStart: map[string]*datasource.BillingResult{
		"2024-01-15": {Records: []models.CostRecord{record("2024-01-15", "us-east-1", 40)}, Total: 40},
	}}
	e := newTestEnricher(billing, nil)

	out, err := e.Attribute(context.Background(), Request{Dimension: "REGION", Compare: true})
	require.NoError(t, err)
	assert.Zero(t, out.Comparison.PercentChange)
	assert.Zero(t, out.Comparison.PreviousTotalCostUsd)
}

func TestAttributeLimitKeepsTotals(t *testing.T) {
	billing := &recordingBilling{byStart: map[string]*datasource.BillingResult{
		"2024-01-15": {
			Records: []models.CostRecord{
				record("2024-01-15", "a", 40),
				record("2024-01-15", "b", 30),
				record("2024-01-15", "c", 20),
				record("2024-01-15", "d", 10),
			},
			Total: 100,
		},
	}}
	e := newTestEnricher(billing, nil)

	out, err := e.Attribute(context.Background(), Request{Dimension: "USAGE_TYPE", Limit: 2})
	require.NoError(t, err)

	assert.Len(t, out.Buckets, 2)
	assert.Equal(t, 100.0, out.AttributedCostUsd)
	assert.Zero(t, out.UnaccountedUsd)
}

func TestAttributeSpikeAnomaly(t *testing.T) {
	var records []models.CostRecord
	for i, v := range []float64{10, 10, 10, 10, 10, 10, 40} {
		day := time.Date(2024, 1, 15+i, 0, 0, 0, 0, time.UTC).Format(models.DateLayout)
		records = append(records, record(day, "eu-west-1", v))
	}
	billing := &recordingBilling{byStart: map[string]*datasource.BillingResult{
		"2024-01-15": {Records: records, Total: 100},
	}}
	e := newTestEnricher(billing, nil)

	out, err := e.Attribute(context.Background(), Request{Dimension: "AZ"})
	require.NoError(t, err)

	require.Len(t, out.Anomalies, 1)
	a := out.Anomalies[0]
	assert.Equal(t, "eu-west-1", a.Key)
	assert.Equal(t, "eu-west-1 daily spend is 180% above its 7-day average", a.Description)
	assert.Equal(t, recommendedActions[models.DimensionAZ], a.RecommendedAction)
	assert.Equal(t, models.SeverityHigh, a.Severity)
}

func TestAttributePropagatesSourceErrors(t *testing.T) {
	cause := errors.New("AccessDeniedException")
	e := newTestEnricher(&recordingBilling{err: cause}, nil)

	_, err := e.Attribute(context.Background(), Request{Dimension: "REGION", Compare: true})
	assert.ErrorIs(t, err, cause)
}

func TestAttributeWithMockSource(t *testing.T) {
	mock := datasource.NewMockSource()
	e := newTestEnricher(mock, mock)

	region, err := e.Attribute(context.Background(), Request{Dimension: "REGION", Days: 7})
	require.NoError(t, err)
	assert.InDelta(t, 1247.83, region.TotalCostUsd, 0.001)
	assert.InDelta(t, 1247.83, region.AttributedCostUsd, 0.011)
	assert.Len(t, region.Buckets, 5)

	team, err := e.Attribute(context.Background(), Request{Dimension: "team", Days: 30, Compare: true})
	require.NoError(t, err)
	assert.True(t, team.Synthetic)
	assert.InDelta(t, team.TotalCostUsd*0.92, team.AttributedCostUsd, 0.05)
	assert.Equal(t, models.TrendIncreasing, team.Buckets[0].Trend)
	require.NotNil(t, team.Comparison)
}

func intp(v int) *int { return &v }
