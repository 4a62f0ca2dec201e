package reporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/opscart/cloud-cost-observer/pkg/models"
)

// KpisCSV writes the daily series followed by a summary block
func KpisCSV(kpis *models.CostKpis, writer io.Writer) error {
	w := csv.NewWriter(writer)

	if err := w.Write([]string{"Date", "Cost ($)"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, d := range kpis.Series7d {
		if err := w.Write([]string{d.Date, money(d.CostUsd)}); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	// Write summary rows
	w.Write([]string{})
	w.Write([]string{"SUMMARY"})
	w.Write([]string{"Total Cost", money(kpis.TotalCostUsd)})
	w.Write([]string{"Daily Burn", money(kpis.DailyBurnUsd)})
	w.Write([]string{"Projected Monthly", money(kpis.ProjectedMonthlyUsd)})
	w.Write([]string{"Anomaly", kpis.Anomaly.Message})
	if kpis.Efficiency != nil {
		w.Write([]string{"Estimated Waste", money(kpis.Efficiency.WasteEstimateUsd)})
		w.Write([]string{"Utilization Score", fmt.Sprintf("%.1f", kpis.Efficiency.UtilizationScore)})
	}

	w.Flush()
	return w.Error()
}

// AttributionCSV writes one row per bucket
func AttributionCSV(attr *models.CostAttribution, writer io.Writer) error {
	w := csv.NewWriter(writer)

	header := []string{
		string(attr.Dimension),
		"Cost ($)",
		"Instances",
		"CPU Hours",
		"Trend",
		"Priority",
		"Owner",
		"Share (%)",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, b := range attr.Buckets {
		row := []string{
			b.Key,
			money(b.TotalCostUsd),
			optInt(b.InstanceCount),
			optFloat(b.CPUHours, 1),
			string(b.Trend),
			"",
			"",
			"",
		}
		if b.Metadata != nil {
			row[5] = string(b.Metadata.Priority)
			row[6] = b.Metadata.Owner
			row[7] = fmt.Sprintf("%.1f", b.Metadata.SharePercent)
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	w.Write([]string{})
	w.Write([]string{"SUMMARY"})
	w.Write([]string{"Time Range", attr.TimeRange.Start + " to " + attr.TimeRange.End})
	w.Write([]string{"Total Cost", money(attr.TotalCostUsd)})
	w.Write([]string{"Attributed", money(attr.AttributedCostUsd)})
	w.Write([]string{"Unaccounted", money(attr.UnaccountedUsd)})
	if attr.Comparison != nil {
		w.Write([]string{"Previous Period", money(attr.Comparison.PreviousTotalCostUsd)})
		w.Write([]string{"Change (%)", fmt.Sprintf("%.1f", attr.Comparison.PercentChange)})
	}

	w.Flush()
	return w.Error()
}

// InstancesCSV writes one row per instance
func InstancesCSV(payload *models.InstancesPayload, writer io.Writer) error {
	w := csv.NewWriter(writer)

	header := []string{
		"Instance ID",
		"Name",
		"Region",
		"AZ",
		"State",
		"Type",
		"Cost/Hour ($)",
		"CPU Avg (%)",
		"CPU Max (%)",
		"Memory Avg (%)",
		"GPU Avg (%)",
		"Waste",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, row := range payload.Instances {
		if err := w.Write([]string{
			row.InstanceID,
			row.Name,
			row.Region,
			row.AvailabilityZone,
			row.State,
			row.InstanceType,
			optFloat(row.CostPerHourUsd, 4),
			optFloat(row.CPUUtilizationAvg24h, 1),
			optFloat(row.CPUUtilizationMax24h, 1),
			optFloat(row.MemoryUtilizationAvg24h, 1),
			optFloat(row.GPUUtilizationAvg24h, 1),
			wasteSummary(row.WasteIndicators),
		}); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func optFloat(v *float64, places int) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.*f", places, *v)
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%d", *v)
}

func wasteSummary(indicators []models.InstanceWasteIndicator) string {
	parts := make([]string, 0, len(indicators))
	for _, w := range indicators {
		parts = append(parts, fmt.Sprintf("%s (%s)", w.Reason, w.Severity))
	}
	return strings.Join(parts, "; ")
}
