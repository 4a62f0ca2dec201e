package datasource

import (
	"context"
	"time"

	"github.com/opscart/cloud-cost-observer/pkg/models"
)

// mockDailyShape is a week of spend, oldest first; longer periods repeat it
var mockDailyShape = []float64{38.24, 41.67, 39.82, 44.91, 37.15, 43.89, 52.15}

type mockBucket struct {
	key    string
	amount float64
	// relative daily drift: >0 ramps up over the period, <0 winds down
	drift float64
	facts BucketFacts
}

func intPtr(v int) *int { return &v }

var mockNativeBuckets = map[models.Dimension][]mockBucket{
	models.DimensionRegion: {
		{key: "us-east-1", amount: 687.45},
		{key: "us-west-2", amount: 324.18, drift: 0.04},
		{key: "eu-west-1", amount: 156.23},
		{key: "ap-southeast-1", amount: 67.89, drift: -0.05},
		{key: "ca-central-1", amount: 12.08},
	},
	models.DimensionInstanceType: {
		{key: "p3.2xlarge", amount: 514.08, drift: 0.06},
		{key: "r5.large", amount: 21.17},
		{key: "c5.xlarge", amount: 14.28, drift: -0.1},
		{key: "t3.medium", amount: 6.99},
		{key: "t3.small", amount: 3.49},
		{key: "t3.micro", amount: 1.75},
	},
	models.DimensionUsageType: {
		{key: "BoxUsage:p3.2xlarge", amount: 514.08, drift: 0.06},
		{key: "EBS:VolumeUsage.gp3", amount: 84.2},
		{key: "DataTransfer-Out-Bytes", amount: 31.55, drift: 0.03},
		{key: "BoxUsage:r5.large", amount: 21.17},
	},
	models.DimensionAZ: {
		{key: "us-east-1a", amount: 412.1},
		{key: "us-west-2a", amount: 324.18, drift: 0.04},
		{key: "us-east-1b", amount: 275.35},
		{key: "eu-west-1a", amount: 156.23},
	},
}

var mockOrgBuckets = map[models.Dimension][]mockBucket{
	models.DimensionTeam: {
		{key: "ml", amount: 534.12, drift: 0.05, facts: BucketFacts{InstanceCount: intPtr(4), Priority: models.PriorityHigh, Owner: "ml-platform"}},
		{key: "backend", amount: 298.77, facts: BucketFacts{InstanceCount: intPtr(6), Owner: "backend-eng"}},
		{key: "data", amount: 187.35, drift: -0.04, facts: BucketFacts{InstanceCount: intPtr(3), Owner: "data-eng"}},
		{key: "frontend", amount: 96.12, facts: BucketFacts{InstanceCount: intPtr(5), Owner: "web"}},
		{key: "devops", amount: 41.9, facts: BucketFacts{InstanceCount: intPtr(2), Owner: "sre"}},
		{key: "qa", amount: 14.33, facts: BucketFacts{InstanceCount: intPtr(1), Priority: models.PriorityLow}},
	},
	models.DimensionProject: {
		{key: "model-training", amount: 521.4, drift: 0.05, facts: BucketFacts{InstanceCount: intPtr(3), Priority: models.PriorityHigh}},
		{key: "database", amount: 276.05, facts: BucketFacts{InstanceCount: intPtr(2)}},
		{key: "batch-jobs", amount: 201.66, drift: -0.04, facts: BucketFacts{InstanceCount: intPtr(4)}},
		{key: "web-app", amount: 104.3, facts: BucketFacts{InstanceCount: intPtr(5)}},
		{key: "monitoring", amount: 45.12, facts: BucketFacts{InstanceCount: intPtr(2)}},
		{key: "testing", amount: 24.06, facts: BucketFacts{InstanceCount: intPtr(2)}},
	},
	models.DimensionResearcher: {
		{key: "researcher-a", amount: 402.17, drift: 0.07, facts: BucketFacts{InstanceCount: intPtr(2), Priority: models.PriorityHigh}},
		{key: "researcher-b", amount: 233.5, facts: BucketFacts{InstanceCount: intPtr(2)}},
		{key: "researcher-c", amount: 118.64, drift: -0.03, facts: BucketFacts{InstanceCount: intPtr(1)}},
		{key: "shared", amount: 398.28, facts: BucketFacts{InstanceCount: intPtr(8), Owner: "platform"}},
	},
	models.DimensionJobType: {
		{key: "training", amount: 589.3, drift: 0.06, facts: BucketFacts{InstanceCount: intPtr(3), CPUHours: floatPtr(1344), Priority: models.PriorityHigh}},
		{key: "inference", amount: 243.77, facts: BucketFacts{InstanceCount: intPtr(4), CPUHours: floatPtr(2688)}},
		{key: "etl", amount: 187.35, drift: -0.04, facts: BucketFacts{InstanceCount: intPtr(3), CPUHours: floatPtr(1008)}},
		{key: "interactive", amount: 132.17, facts: BucketFacts{InstanceCount: intPtr(6), CPUHours: floatPtr(410)}},
	},
}

func floatPtr(v float64) *float64 { return &v }

type mockInstance struct {
	desc models.InstanceDescriptor
	cpu  models.CPUStats
}

func mustTime(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

var mockInstances = []mockInstance{
	{
		desc: models.InstanceDescriptor{
			InstanceID: "i-1234567890abcdef0", Name: "web-server-prod-01", Region: "us-east-1", AvailabilityZone: "us-east-1a",
			State: models.StateRunning, InstanceType: "t3.medium", LaunchTime: mustTime("2024-01-15T10:30:00Z"),
			Tags:                    map[string]string{"Name": "web-server-prod-01", "Environment": "production", "Team": "frontend", "Project": "web-app", "Backup": "enabled"},
			MemoryUtilizationAvg24h: floatPtr(62.1),
		},
		cpu: models.CPUStats{Avg: floatPtr(45.2), Max: floatPtr(78.9)},
	},
	{
		desc: models.InstanceDescriptor{
			InstanceID: "i-0987654321fedcba0", Name: "database-master", Region: "us-east-1", AvailabilityZone: "us-east-1b",
			State: models.StateRunning, InstanceType: "r5.large", LaunchTime: mustTime("2024-01-10T08:15:00Z"),
			Tags:                    map[string]string{"Name": "database-master", "Environment": "production", "Team": "backend", "Project": "database", "Backup": "enabled"},
			MemoryUtilizationAvg24h: floatPtr(89.3),
		},
		cpu: models.CPUStats{Avg: floatPtr(23.7), Max: floatPtr(45.2)},
	},
	{
		desc: models.InstanceDescriptor{
			InstanceID: "i-1122334455667788", Name: "batch-processor-01", Region: "us-west-2", AvailabilityZone: "us-west-2c",
			State: models.StateStopped, InstanceType: "c5.xlarge", LaunchTime: mustTime("2024-01-20T14:00:00Z"),
			Tags: map[string]string{"Name": "batch-processor-01", "Environment": "staging", "Team": "data", "Project": "batch-jobs", "AutoStop": "true"},
		},
	},
	{
		desc: models.InstanceDescriptor{
			InstanceID: "i-9988776655443322", Name: "dev-test-server", Region: "us-east-1", AvailabilityZone: "us-east-1a",
			State: models.StateRunning, InstanceType: "t3.micro", LaunchTime: mustTime("2024-01-25T09:00:00Z"),
			Tags:                    map[string]string{"Name": "dev-test-server", "Environment": "development", "Team": "qa", "Project": "testing", "AutoStop": "true"},
			MemoryUtilizationAvg24h: floatPtr(18.5),
		},
		cpu: models.CPUStats{Avg: floatPtr(3.2), Max: floatPtr(12.8)},
	},
	{
		desc: models.InstanceDescriptor{
			InstanceID: "i-5566778899aabbcc", Name: "ml-training-gpu", Region: "us-west-2", AvailabilityZone: "us-west-2b",
			State: models.StateRunning, InstanceType: "p3.2xlarge", LaunchTime: mustTime("2024-01-18T16:00:00Z"),
			Tags:                    map[string]string{"Name": "ml-training-gpu", "Environment": "production", "Team": "ml", "Project": "model-training", "GPU": "v100"},
			MemoryUtilizationAvg24h: floatPtr(74.3),
			GPUUtilizationAvg24h:    floatPtr(89.7),
		},
		cpu: models.CPUStats{Avg: floatPtr(67.8), Max: floatPtr(95.2)},
	},
	{
		desc: models.InstanceDescriptor{
			InstanceID: "i-aabbccddeeff1122", Name: "monitoring-server", Region: "eu-west-1", AvailabilityZone: "eu-west-1c",
			State: models.StateRunning, InstanceType: "t3.small", LaunchTime: mustTime("2024-01-12T11:00:00Z"),
			Tags:                    map[string]string{"Name": "monitoring-server", "Environment": "production", "Team": "devops", "Project": "monitoring", "Backup": "enabled"},
			MemoryUtilizationAvg24h: floatPtr(41.2),
		},
		cpu: models.CPUStats{Avg: floatPtr(28.9), Max: floatPtr(56.4)},
	},
}

// MockSource serves fixed demo data for every source interface, shaped to
// whatever period is asked for. It needs no credentials.
type MockSource struct{}

func NewMockSource() *MockSource {
	return &MockSource{}
}

func (m *MockSource) Name() string {
	return "mock"
}

// MockRegions lists the regions the mock inventory spans
func MockRegions() []string {
	return []string{"us-east-1", "us-west-2", "eu-west-1"}
}

func (m *MockSource) CostAndUsage(ctx context.Context, q BillingQuery) (*BillingResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	days := dayStarts(q.Period)
	result := &BillingResult{Daily: make([]models.DailyCost, 0, len(days))}

	if q.Dimension == "" && q.TagKey == "" {
		for i, day := range days {
			v := mockDailyShape[(len(mockDailyShape)-len(days)%len(mockDailyShape)+i)%len(mockDailyShape)]
			result.Daily = append(result.Daily, models.DailyCost{Date: day.Format(models.DateLayout), CostUsd: v})
			result.Total += v
		}
		return result, nil
	}

	buckets, ok := mockNativeBuckets[q.Dimension]
	if !ok {
		buckets = mockNativeBuckets[models.DimensionRegion]
	}
	result.Records = spreadBuckets(buckets, q.Period)
	perDay := make(map[string]float64)
	for _, r := range result.Records {
		perDay[r.Period.Start.Format(models.DateLayout)] += r.AmountUsd
		result.Total += r.AmountUsd
	}
	for _, day := range days {
		date := day.Format(models.DateLayout)
		result.Daily = append(result.Daily, models.DailyCost{Date: date, CostUsd: perDay[date]})
	}
	return result, nil
}

func (m *MockSource) Allocations(ctx context.Context, dim models.Dimension, period models.Period) (*AllocationSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buckets, ok := mockOrgBuckets[dim]
	if !ok {
		return &AllocationSet{Facts: map[string]BucketFacts{}}, nil
	}

	set := &AllocationSet{
		Records: spreadBuckets(buckets, period),
		Facts:   make(map[string]BucketFacts, len(buckets)),
	}
	for _, b := range buckets {
		set.Total += b.amount
		set.Facts[b.key] = b.facts
	}
	return set, nil
}

// ListInstances filters the demo fleet by region; "all" returns every instance
func (m *MockSource) ListInstances(ctx context.Context, region string) ([]models.InstanceDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []models.InstanceDescriptor
	for _, inst := range mockInstances {
		if region == RegionAll || region == "" || inst.desc.Region == region {
			out = append(out, copyDescriptor(inst.desc))
		}
	}
	return out, nil
}

func (m *MockSource) CPUUtilization(ctx context.Context, _ string, instanceID string) (models.CPUStats, error) {
	if err := ctx.Err(); err != nil {
		return models.CPUStats{}, err
	}
	for _, inst := range mockInstances {
		if inst.desc.InstanceID == instanceID {
			return inst.cpu, nil
		}
	}
	return models.CPUStats{}, nil
}

// MockHourlyPrices are the on-demand prices the demo fleet is billed at
func MockHourlyPrices() map[string]float64 {
	return map[string]float64{
		"t3.micro":   0.0104,
		"t3.small":   0.0208,
		"t3.medium":  0.0416,
		"r5.large":   0.126,
		"c5.xlarge":  0.17,
		"p3.2xlarge": 3.06,
	}
}

func copyDescriptor(d models.InstanceDescriptor) models.InstanceDescriptor {
	tags := make(map[string]string, len(d.Tags))
	for k, v := range d.Tags {
		tags[k] = v
	}
	d.Tags = tags
	return d
}

func dayStarts(p models.Period) []time.Time {
	var days []time.Time
	for day := p.Start; day.Before(p.End); day = day.AddDate(0, 0, 1) {
		days = append(days, day)
	}
	return days
}

// spreadBuckets splits each bucket's amount across the period's days so that
// the per-key total is preserved and drift shapes the daily trend
func spreadBuckets(buckets []mockBucket, period models.Period) []models.CostRecord {
	days := dayStarts(period)
	if len(days) == 0 {
		return nil
	}
	mid := float64(len(days)-1) / 2

	var records []models.CostRecord
	for _, b := range buckets {
		weights := make([]float64, len(days))
		sum := 0.0
		for i := range days {
			w := 1 + b.drift*(float64(i)-mid)
			if w < 0.05 {
				w = 0.05
			}
			weights[i] = w
			sum += w
		}
		for i, day := range days {
			records = append(records, models.CostRecord{
				Period:    models.Period{Start: day, End: day.AddDate(0, 0, 1)},
				Key:       b.key,
				AmountUsd: b.amount * weights[i] / sum,
			})
		}
	}
	return records
}
