package models

import "time"

// Severity of a waste indicator or anomaly
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Instance lifecycle states as reported by the inventory provider
const (
	StateRunning = "running"
	StateStopped = "stopped"
)

// InstanceDescriptor is one compute instance as returned by an inventory source
type InstanceDescriptor struct {
	InstanceID       string
	Name             string
	Region           string
	AvailabilityZone string
	State            string
	InstanceType     string
	LaunchTime       *time.Time
	Tags             map[string]string

	// Filled by sources that know them, nil otherwise
	MemoryUtilizationAvg24h *float64
	GPUUtilizationAvg24h    *float64
}

// CPUStats is the trailing-24h CPU utilization pair; both nil when no datapoints exist
type CPUStats struct {
	Avg *float64
	Max *float64
}

// InstanceWasteIndicator is a flagged condition on one instance
type InstanceWasteIndicator struct {
	Reason   string   `json:"reason" yaml:"reason"`
	Severity Severity `json:"severity" yaml:"severity"`
}

// InstanceRow is the per-instance payload row
type InstanceRow struct {
	InstanceID              string                   `json:"instanceId" yaml:"instanceId"`
	Name                    string                   `json:"name,omitempty" yaml:"name,omitempty"`
	Region                  string                   `json:"region" yaml:"region"`
	AvailabilityZone        string                   `json:"availabilityZone,omitempty" yaml:"availabilityZone,omitempty"`
	State                   string                   `json:"state" yaml:"state"`
	InstanceType            string                   `json:"instanceType" yaml:"instanceType"`
	LaunchTime              string                   `json:"launchTime,omitempty" yaml:"launchTime,omitempty"`
	Tags                    map[string]string        `json:"tags,omitempty" yaml:"tags,omitempty"`
	CostPerHourUsd          *float64                 `json:"costPerHourUsd" yaml:"costPerHourUsd"`
	CPUUtilizationAvg24h    *float64                 `json:"cpuUtilizationAvg24h" yaml:"cpuUtilizationAvg24h"`
	CPUUtilizationMax24h    *float64                 `json:"cpuUtilizationMax24h" yaml:"cpuUtilizationMax24h"`
	MemoryUtilizationAvg24h *float64                 `json:"memoryUtilizationAvg24h" yaml:"memoryUtilizationAvg24h"`
	GPUUtilizationAvg24h    *float64                 `json:"gpuUtilizationAvg24h" yaml:"gpuUtilizationAvg24h"`
	WasteIndicators         []InstanceWasteIndicator `json:"wasteIndicators" yaml:"wasteIndicators"`
}

// InstancesPayload wraps the instance table
type InstancesPayload struct {
	Instances []InstanceRow `json:"instances" yaml:"instances"`
}

// Float returns a pointer to v, for nullable payload fields
func Float(v float64) *float64 {
	return &v
}
