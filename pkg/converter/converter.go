package converter

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/opscart/cloud-cost-observer/pkg/models"
)

// MetricUnblendedCost is the Cost Explorer metric every query asks for
const MetricUnblendedCost = "UnblendedCost"

// CostResults is the flattened form of a Cost Explorer response
type CostResults struct {
	Records []models.CostRecord
	// Per-day totals keyed by models.DateLayout date
	Daily map[string]float64
	Total float64
}

// CostExplorerResults flattens ResultsByTime into records and daily totals.
// Missing group keys become UNKNOWN and missing amounts count as zero. A time
// bucket without a Total (Cost Explorer omits it for grouped queries) falls
// back to the sum of its groups.
func CostExplorerResults(results []cetypes.ResultByTime, tagGrouped bool) CostResults {
	out := CostResults{Daily: make(map[string]float64)}

	for _, r := range results {
		period := datePeriod(r.TimePeriod)
		date := period.Start.Format(models.DateLayout)

		groupSum := 0.0
		for _, g := range r.Groups {
			key := models.UnknownKey
			if len(g.Keys) > 0 {
				key = g.Keys[0]
				if tagGrouped {
					key = TagValue(key)
				}
			}
			if strings.TrimSpace(key) == "" {
				key = models.UnknownKey
			}
			amount := metricAmount(g.Metrics)
			groupSum += amount
			out.Records = append(out.Records, models.CostRecord{
				Period:    period,
				Key:       key,
				AmountUsd: amount,
			})
		}

		dayTotal := groupSum
		if _, ok := r.Total[MetricUnblendedCost]; ok {
			dayTotal = metricAmount(r.Total)
		}
		out.Daily[date] += dayTotal
		out.Total += dayTotal
	}

	return out
}

// TagValue strips the "Key$" prefix Cost Explorer puts on tag group keys
func TagValue(groupKey string) string {
	if i := strings.Index(groupKey, "$"); i >= 0 {
		groupKey = groupKey[i+1:]
	}
	if strings.TrimSpace(groupKey) == "" {
		return models.UnknownKey
	}
	return groupKey
}

// metricAmount parses the unblended cost; credits stay negative, unparseable
// or non-finite amounts are zero
func metricAmount(metrics map[string]cetypes.MetricValue) float64 {
	mv, ok := metrics[MetricUnblendedCost]
	if !ok || mv.Amount == nil {
		return 0
	}
	v, err := strconv.ParseFloat(*mv.Amount, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func datePeriod(interval *cetypes.DateInterval) models.Period {
	if interval == nil {
		return models.Period{}
	}
	start, _ := time.Parse(models.DateLayout, aws.ToString(interval.Start))
	end, _ := time.Parse(models.DateLayout, aws.ToString(interval.End))
	return models.Period{Start: start, End: end}
}

// FillDailyGaps returns one entry per day of period in order, zero where byDate has none
func FillDailyGaps(period models.Period, byDate map[string]float64) []models.DailyCost {
	series := make([]models.DailyCost, 0, period.Days())
	for day := period.Start; day.Before(period.End); day = day.AddDate(0, 0, 1) {
		date := day.Format(models.DateLayout)
		series = append(series, models.DailyCost{Date: date, CostUsd: byDate[date]})
	}
	return series
}

// EC2Instance converts a DescribeInstances entry into a descriptor
func EC2Instance(inst ec2types.Instance, region string) models.InstanceDescriptor {
	desc := models.InstanceDescriptor{
		InstanceID:   aws.ToString(inst.InstanceId),
		Region:       region,
		InstanceType: string(inst.InstanceType),
		LaunchTime:   inst.LaunchTime,
		Tags:         make(map[string]string, len(inst.Tags)),
	}
	desc.State = "unknown"
	if inst.State != nil && inst.State.Name != "" {
		desc.State = string(inst.State.Name)
	}
	if desc.InstanceType == "" {
		desc.InstanceType = "unknown"
	}
	if inst.Placement != nil {
		desc.AvailabilityZone = aws.ToString(inst.Placement.AvailabilityZone)
	}
	for _, tag := range inst.Tags {
		key, value := aws.ToString(tag.Key), aws.ToString(tag.Value)
		if key == "" || value == "" {
			continue
		}
		desc.Tags[key] = value
		if key == "Name" {
			desc.Name = value
		}
	}
	return desc
}

// InstanceRow builds the payload row; waste indicators start empty
func InstanceRow(desc models.InstanceDescriptor, cpu models.CPUStats, costPerHour *float64) models.InstanceRow {
	row := models.InstanceRow{
		InstanceID:              desc.InstanceID,
		Name:                    desc.Name,
		Region:                  desc.Region,
		AvailabilityZone:        desc.AvailabilityZone,
		State:                   desc.State,
		InstanceType:            desc.InstanceType,
		CostPerHourUsd:          costPerHour,
		CPUUtilizationAvg24h:    cpu.Avg,
		CPUUtilizationMax24h:    cpu.Max,
		MemoryUtilizationAvg24h: desc.MemoryUtilizationAvg24h,
		GPUUtilizationAvg24h:    desc.GPUUtilizationAvg24h,
		WasteIndicators:         []models.InstanceWasteIndicator{},
	}
	if desc.LaunchTime != nil {
		row.LaunchTime = desc.LaunchTime.UTC().Format(time.RFC3339)
	}
	if len(desc.Tags) > 0 {
		row.Tags = desc.Tags
	}
	return row
}
