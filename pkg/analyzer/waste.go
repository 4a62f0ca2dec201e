package analyzer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/opscart/cloud-cost-observer/pkg/config"
	"github.com/opscart/cloud-cost-observer/pkg/models"
)

// ReasonStoppedInstance is emitted for every stopped instance
const ReasonStoppedInstance = "Stopped instance still incurring EBS cost"

// LowCPUReason renders the idle-instance reason for a threshold, e.g. "CPU < 5% avg (24h)"
func LowCPUReason(thresholdPercent float64) string {
	return fmt.Sprintf("CPU < %s%% avg (24h)", strconv.FormatFloat(thresholdPercent, 'f', -1, 64))
}

// DetectWaste evaluates the waste rules for one instance, in rule order.
// A running instance with no CPU datapoints counts as idle.
func DetectWaste(state string, cpuAvg *float64, policy config.Policy) []models.InstanceWasteIndicator {
	indicators := []models.InstanceWasteIndicator{}
	state = strings.ToLower(strings.TrimSpace(state))

	cpu := 0.0
	if cpuAvg != nil {
		cpu = *cpuAvg
	}

	if state == models.StateRunning && cpu < policy.LowCPUThresholdPercent {
		indicators = append(indicators, models.InstanceWasteIndicator{
			Reason:   LowCPUReason(policy.LowCPUThresholdPercent),
			Severity: models.SeverityHigh,
		})
	}

	if state == models.StateStopped {
		indicators = append(indicators, models.InstanceWasteIndicator{
			Reason:   ReasonStoppedInstance,
			Severity: models.SeverityMedium,
		})
	}

	return indicators
}
