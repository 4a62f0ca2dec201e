package dashboard

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/opscart/cloud-cost-observer/pkg/apierror"
	"github.com/opscart/cloud-cost-observer/pkg/attribution"
	"github.com/opscart/cloud-cost-observer/pkg/config"
	"github.com/opscart/cloud-cost-observer/pkg/datasource"
	"github.com/opscart/cloud-cost-observer/pkg/metrics"
	"github.com/opscart/cloud-cost-observer/pkg/models"
	"github.com/opscart/cloud-cost-observer/pkg/pricing"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 1, 22, 9, 30, 0, 0, time.UTC)

func mockService(t *testing.T, opts Options) (*Service, *metrics.Collector) {
	t.Helper()
	mock := datasource.NewMockSource()
	m := metrics.New()
	svc := NewService(Sources{
		Billing:     mock,
		Inventory:   mock,
		Utilization: mock,
		OrgTags:     mock,
		Pricing:     pricing.NewStaticProvider(datasource.MockHourlyPrices()),
	}, config.DefaultPolicy(), opts, m, nil)
	svc.SetClock(func() time.Time { return fixedNow })
	return svc, m
}

func TestCostKpisFromMock(t *testing.T) {
	svc, m := mockService(t, Options{})

	kpis, err := svc.CostKpis(context.Background(), 7)
	require.NoError(t, err)

	require.Len(t, kpis.Series7d, 7)
	assert.Equal(t, "2024-01-15", kpis.Series7d[0].Date)
	assert.Equal(t, "2024-01-21", kpis.Series7d[6].Date)
	assert.Equal(t, 297.83, kpis.TotalCostUsd)
	assert.Equal(t, 52.15, kpis.DailyBurnUsd)
	assert.Equal(t, 1564.5, kpis.ProjectedMonthlyUsd)
	assert.False(t, kpis.Anomaly.Present)
	assert.Equal(t, fixedNow, kpis.LastUpdated)
	require.NotNil(t, kpis.Efficiency)
	assert.True(t, kpis.Efficiency.Estimate)

	expected := `
# HELP cost_observer_daily_burn_usd Most recent full day of spend.
# TYPE cost_observer_daily_burn_usd gauge
cost_observer_daily_burn_usd 52.15
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "cost_observer_daily_burn_usd"))
}

func TestCostKpisRejectsBadDays(t *testing.T) {
	svc, _ := mockService(t, Options{})

	_, err := svc.CostKpis(context.Background(), 365)
	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierror.KindInvalidRequest, apiErr.Kind)
}

func TestCostAttributionFromMock(t *testing.T) {
	svc, _ := mockService(t, Options{})

	out, err := svc.CostAttribution(context.Background(), attribution.Request{Dimension: "REGION", Days: 7, Limit: 3})
	require.NoError(t, err)

	assert.Equal(t, models.TimeRange{Start: "2024-01-15", End: "2024-01-22"}, out.TimeRange)
	assert.Equal(t, 1247.83, out.TotalCostUsd)
	assert.Equal(t, 1247.83, out.AttributedCostUsd)
	assert.Len(t, out.Buckets, 3)
	assert.Equal(t, "us-east-1", out.Buckets[0].Key)

	_, err = svc.CostAttribution(context.Background(), attribution.Request{Dimension: "REGION", Limit: -1})
	assert.Error(t, err)
}

func TestInstancesAllRegions(t *testing.T) {
	svc, _ := mockService(t, Options{DefaultRegion: "us-east-1"})

	payload, err := svc.Instances(context.Background(), datasource.RegionAll)
	require.NoError(t, err)
	require.Len(t, payload.Instances, 6)

	// sorted by region, then instance id
	for i := 1; i < len(payload.Instances); i++ {
		prev, cur := payload.Instances[i-1], payload.Instances[i]
		ordered := prev.Region < cur.Region || (prev.Region == cur.Region && prev.InstanceID < cur.InstanceID)
		assert.True(t, ordered, "%s/%s before %s/%s", prev.Region, prev.InstanceID, cur.Region, cur.InstanceID)
	}

	rows := map[string]models.InstanceRow{}
	for _, r := range payload.Instances {
		rows[r.InstanceID] = r
	}

	dev := rows["i-9988776655443322"]
	require.Len(t, dev.WasteIndicators, 1)
	assert.Equal(t, "CPU < 5% avg (24h)", dev.WasteIndicators[0].Reason)
	assert.Equal(t, models.SeverityHigh, dev.WasteIndicators[0].Severity)
	assert.Equal(t, 0.0104, *dev.CostPerHourUsd)

	batch := rows["i-1122334455667788"]
	require.Len(t, batch.WasteIndicators, 1)
	assert.Equal(t, "Stopped instance still incurring EBS cost", batch.WasteIndicators[0].Reason)
	assert.Nil(t, batch.CPUUtilizationAvg24h)

	gpu := rows["i-5566778899aabbcc"]
	assert.Empty(t, gpu.WasteIndicators)
	assert.NotNil(t, gpu.WasteIndicators)
	assert.Equal(t, 89.7, *gpu.GPUUtilizationAvg24h)
	assert.Equal(t, "2024-01-18T16:00:00Z", gpu.LaunchTime)
}

func TestInstancesSingleRegion(t *testing.T) {
	svc, _ := mockService(t, Options{DefaultRegion: "us-west-2"})

	payload, err := svc.Instances(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, payload.Instances, 2)

	payload, err = svc.Instances(context.Background(), "ap-south-1")
	require.NoError(t, err)
	assert.NotNil(t, payload.Instances)
	assert.Empty(t, payload.Instances)
}

func TestInstancesAllowedRegions(t *testing.T) {
	svc, _ := mockService(t, Options{AllowedRegions: []string{"us-east-1", "eu-west-1"}})

	payload, err := svc.Instances(context.Background(), datasource.RegionAll)
	require.NoError(t, err)
	assert.Len(t, payload.Instances, 4)

	_, err = svc.Instances(context.Background(), "us-west-2")
	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierror.KindInvalidRequest, apiErr.Kind)
}

type failingUtilization struct{ err error }

func (f failingUtilization) Name() string { return "failing" }

func (f failingUtilization) CPUUtilization(context.Context, string, string) (models.CPUStats, error) {
	return models.CPUStats{}, f.err
}

type failingPricing struct{}

func (failingPricing) Name() string { return "failing" }

func (failingPricing) HourlyPrice(context.Context, string, string) (*float64, error) {
	return nil, errors.New("pricing unavailable")
}

func TestInstancesFailWhole(t *testing.T) {
	cause := errors.New("UnauthorizedOperation")
	mock := datasource.NewMockSource()
	svc := NewService(Sources{
		Billing:     mock,
		Inventory:   mock,
		Utilization: failingUtilization{err: cause},
	}, config.DefaultPolicy(), Options{}, nil, nil)

	payload, err := svc.Instances(context.Background(), datasource.RegionAll)
	assert.Nil(t, payload)
	assert.ErrorIs(t, err, cause)
}

func TestInstancesPriceFailureLeavesNull(t *testing.T) {
	mock := datasource.NewMockSource()
	svc := NewService(Sources{
		Billing:     mock,
		Inventory:   mock,
		Utilization: mock,
		Pricing:     failingPricing{},
	}, config.DefaultPolicy(), Options{}, nil, nil)

	payload, err := svc.Instances(context.Background(), datasource.RegionAll)
	require.NoError(t, err)
	for _, row := range payload.Instances {
		assert.Nil(t, row.CostPerHourUsd)
	}
}
