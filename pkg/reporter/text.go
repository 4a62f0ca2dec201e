package reporter

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/opscart/cloud-cost-observer/pkg/models"
)

var (
	headerColor = color.New(color.Bold)
	alertColor  = color.New(color.FgRed, color.Bold)
	okColor     = color.New(color.FgGreen)
)

var severityColors = map[models.Severity]*color.Color{
	models.SeverityHigh:   color.New(color.FgRed),
	models.SeverityMedium: color.New(color.FgYellow),
	models.SeverityLow:    color.New(color.FgCyan),
}

// KpisText prints the headline numbers and the daily series
func KpisText(kpis *models.CostKpis, out io.Writer) error {
	headerColor.Fprintln(out, "COST KPIS")
	fmt.Fprintf(out, "  Total cost:         $%.2f\n", kpis.TotalCostUsd)
	fmt.Fprintf(out, "  Daily burn:         $%.2f\n", kpis.DailyBurnUsd)
	fmt.Fprintf(out, "  Projected monthly:  $%.2f\n", kpis.ProjectedMonthlyUsd)
	if kpis.DayOverDayPercent != nil {
		fmt.Fprintf(out, "  Day over day:       %+.1f%%\n", *kpis.DayOverDayPercent)
	}
	if kpis.Anomaly.Present {
		alertColor.Fprintf(out, "  Anomaly: %s\n", kpis.Anomaly.Message)
	} else {
		okColor.Fprintln(out, "  No anomaly detected")
	}

	if e := kpis.Efficiency; e != nil {
		fmt.Fprintln(out)
		headerColor.Fprintln(out, "EFFICIENCY (estimate)")
		fmt.Fprintf(out, "  Waste:              $%.2f (%.1f%%)\n", e.WasteEstimateUsd, e.WasteEstimatePercent)
		fmt.Fprintf(out, "  Utilization score:  %.1f\n", e.UtilizationScore)
		fmt.Fprintf(out, "  Savings:            $%.2f (%.1f%%)\n", e.SavingsOpportunityUsd, e.SavingsOpportunityPercent)
	}

	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tCOST")
	for _, d := range kpis.Series7d {
		fmt.Fprintf(tw, "%s\t$%.2f\n", d.Date, d.CostUsd)
	}
	return tw.Flush()
}

// AttributionText prints the bucket table, comparison and anomalies
func AttributionText(attr *models.CostAttribution, out io.Writer) error {
	title := fmt.Sprintf("COST BY %s (%s to %s)", attr.Dimension, attr.TimeRange.Start, attr.TimeRange.End)
	if attr.Synthetic {
		title += " [synthetic]"
	}
	headerColor.Fprintln(out, title)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tCOST\tSHARE\tTREND\tPRIORITY\tOWNER")
	for _, b := range attr.Buckets {
		share, priority, owner := "", "", ""
		if b.Metadata != nil {
			share = fmt.Sprintf("%.1f%%", b.Metadata.SharePercent)
			priority = string(b.Metadata.Priority)
			owner = b.Metadata.Owner
		}
		fmt.Fprintf(tw, "%s\t$%.2f\t%s\t%s\t%s\t%s\n", b.Key, b.TotalCostUsd, share, b.Trend, priority, owner)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Total: $%.2f  Attributed: $%.2f  Unaccounted: $%.2f\n",
		attr.TotalCostUsd, attr.AttributedCostUsd, attr.UnaccountedUsd)
	if c := attr.Comparison; c != nil {
		fmt.Fprintf(out, "Previous period (%s to %s): $%.2f (%+.1f%%)\n",
			c.PreviousTimeRange.Start, c.PreviousTimeRange.End, c.PreviousTotalCostUsd, c.PercentChange)
	}

	if len(attr.Anomalies) > 0 {
		fmt.Fprintln(out)
		headerColor.Fprintln(out, "ANOMALIES")
		for _, a := range attr.Anomalies {
			severityColor(a.Severity).Fprintf(out, "  [%s] ", strings.ToUpper(string(a.Severity)))
			fmt.Fprintf(out, "%s: %s\n", a.Key, a.Description)
			fmt.Fprintf(out, "         -> %s\n", a.RecommendedAction)
		}
	}
	return nil
}

// InstancesText prints one line per instance with its waste indicators
func InstancesText(payload *models.InstancesPayload, out io.Writer) error {
	if len(payload.Instances) == 0 {
		fmt.Fprintln(out, "No instances found")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INSTANCE\tNAME\tREGION\tSTATE\tTYPE\t$/HOUR\tCPU AVG\tCPU MAX\tWASTE")
	for _, row := range payload.Instances {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			row.InstanceID,
			row.Name,
			row.Region,
			row.State,
			row.InstanceType,
			orDash(optFloat(row.CostPerHourUsd, 4)),
			orDash(percent(row.CPUUtilizationAvg24h)),
			orDash(percent(row.CPUUtilizationMax24h)),
			orDash(wasteSummary(row.WasteIndicators)),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	flagged := 0
	for _, row := range payload.Instances {
		if len(row.WasteIndicators) > 0 {
			flagged++
		}
	}
	fmt.Fprintln(out)
	if flagged > 0 {
		alertColor.Fprintf(out, "%d of %d instance(s) flagged\n", flagged, len(payload.Instances))
	} else {
		okColor.Fprintf(out, "%d instance(s), none flagged\n", len(payload.Instances))
	}
	return nil
}

func severityColor(s models.Severity) *color.Color {
	if c, ok := severityColors[s]; ok {
		return c
	}
	return color.New(color.Reset)
}

func percent(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.1f%%", *v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
