package models

// Trend classifies the direction of a bucket's daily spend
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendStable     Trend = "stable"
	TrendDecreasing Trend = "decreasing"
)

// Priority ranks a bucket for follow-up
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority returns "" for anything outside the known levels
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return Priority(s)
	}
	return ""
}

// BucketMetadata carries organizational facts about a bucket
type BucketMetadata struct {
	Priority     Priority          `json:"priority,omitempty" yaml:"priority,omitempty"`
	Owner        string            `json:"owner,omitempty" yaml:"owner,omitempty"`
	SharePercent float64           `json:"sharePercent" yaml:"sharePercent"`
	Labels       map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// AttributionBucket is the grouped cost for one dimension key
type AttributionBucket struct {
	Key           string          `json:"key" yaml:"key"`
	TotalCostUsd  float64         `json:"totalCostUsd" yaml:"totalCostUsd"`
	InstanceCount *int            `json:"instanceCount,omitempty" yaml:"instanceCount,omitempty"`
	CPUHours      *float64        `json:"cpuHours,omitempty" yaml:"cpuHours,omitempty"`
	Trend         Trend           `json:"trend,omitempty" yaml:"trend,omitempty"`
	Metadata      *BucketMetadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Comparison is the period-over-period change of the total
type Comparison struct {
	PreviousTimeRange    TimeRange `json:"previousTimeRange" yaml:"previousTimeRange"`
	PreviousTotalCostUsd float64   `json:"previousTotalCostUsd" yaml:"previousTotalCostUsd"`
	PercentChange        float64   `json:"percentChange" yaml:"percentChange"`
}

// AttributionAnomaly explains why a bucket was flagged
type AttributionAnomaly struct {
	Key               string   `json:"key" yaml:"key"`
	Description       string   `json:"description" yaml:"description"`
	RecommendedAction string   `json:"recommendedAction" yaml:"recommendedAction"`
	Severity          Severity `json:"severity" yaml:"severity"`
}

// CostAttribution is the dimension-grouped cost payload.
// AttributedCostUsd is computed before Buckets is truncated for display.
type CostAttribution struct {
	Dimension         Dimension            `json:"dimension" yaml:"dimension"`
	TimeRange         TimeRange            `json:"timeRange" yaml:"timeRange"`
	TotalCostUsd      float64              `json:"totalCostUsd" yaml:"totalCostUsd"`
	AttributedCostUsd float64              `json:"attributedCostUsd" yaml:"attributedCostUsd"`
	Buckets           []AttributionBucket  `json:"buckets" yaml:"buckets"`
	UnaccountedUsd    float64              `json:"unaccountedUsd" yaml:"unaccountedUsd"`
	Synthetic         bool                 `json:"synthetic,omitempty" yaml:"synthetic,omitempty"`
	Comparison        *Comparison          `json:"comparison,omitempty" yaml:"comparison,omitempty"`
	Anomalies         []AttributionAnomaly `json:"anomalies,omitempty" yaml:"anomalies,omitempty"`
}
