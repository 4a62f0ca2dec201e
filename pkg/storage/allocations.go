package storage

import (
	"time"

	"github.com/opscart/cloud-cost-observer/pkg/datasource"
	"github.com/opscart/cloud-cost-observer/pkg/models"
)

// BuildAllocationSet turns daily rows into records plus per-key facts.
// Instance count is the peak over the range, cpu hours the sum; the latest
// non-empty priority and owner win.
func BuildAllocationSet(rows []AllocationRow) *datasource.AllocationSet {
	set := &datasource.AllocationSet{
		Facts: make(map[string]datasource.BucketFacts),
	}

	for _, row := range rows {
		day, err := time.Parse(models.DateLayout, row.Day)
		if err != nil {
			continue
		}
		key := row.Key
		if key == "" {
			key = models.UnknownKey
		}

		set.Records = append(set.Records, models.CostRecord{
			Period:    models.Period{Start: day, End: day.AddDate(0, 0, 1)},
			Key:       key,
			AmountUsd: row.CostUsd,
		})
		set.Total += row.CostUsd

		facts := set.Facts[key]
		if row.InstanceCount != nil && (facts.InstanceCount == nil || *row.InstanceCount > *facts.InstanceCount) {
			n := *row.InstanceCount
			facts.InstanceCount = &n
		}
		if row.CPUHours != nil {
			h := *row.CPUHours
			if facts.CPUHours != nil {
				h += *facts.CPUHours
			}
			facts.CPUHours = &h
		}
		if row.Priority != "" {
			facts.Priority = row.Priority
		}
		if row.Owner != "" {
			facts.Owner = row.Owner
		}
		for k, v := range row.Labels {
			if facts.Labels == nil {
				facts.Labels = make(map[string]string)
			}
			facts.Labels[k] = v
		}
		set.Facts[key] = facts
	}

	return set
}
