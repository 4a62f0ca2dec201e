package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/opscart/cloud-cost-observer/pkg/models"
	"github.com/pkg/errors"
)

// Policy holds the tunable heuristics. None of these are accounting facts.
type Policy struct {
	// Burn is anomalous when it exceeds the window average by this factor
	AnomalyThreshold float64 `koanf:"anomaly-threshold" yaml:"anomaly-threshold"`
	// Linear monthly projection multiplier applied to the daily burn
	ProjectionDays float64 `koanf:"projection-days" yaml:"projection-days"`

	// Efficiency estimate: waste% = base + normalizedVariance*span
	WasteBasePercent   float64 `koanf:"waste-base-percent" yaml:"waste-base-percent"`
	WasteVarianceSpan  float64 `koanf:"waste-variance-span" yaml:"waste-variance-span"`
	SavingsRealization float64 `koanf:"savings-realization" yaml:"savings-realization"`
	UtilizationFloor   float64 `koanf:"utilization-floor" yaml:"utilization-floor"`

	// Share of total treated as attributed for organizational dimensions.
	// Placeholder until a real tagging backend reports coverage.
	SyntheticAttributionFraction float64 `koanf:"synthetic-attribution-fraction" yaml:"synthetic-attribution-fraction"`

	LowCPUThresholdPercent float64 `koanf:"low-cpu-threshold-percent" yaml:"low-cpu-threshold-percent"`

	// A bucket trends up or down when its fitted change over the window exceeds this
	TrendThresholdPercent float64 `koanf:"trend-threshold-percent" yaml:"trend-threshold-percent"`

	// Share of total that makes a bucket high or medium priority
	HighPrioritySharePercent   float64 `koanf:"high-priority-share-percent" yaml:"high-priority-share-percent"`
	MediumPrioritySharePercent float64 `koanf:"medium-priority-share-percent" yaml:"medium-priority-share-percent"`
}

// DefaultPolicy returns the stock heuristics
func DefaultPolicy() Policy {
	return Policy{
		AnomalyThreshold:             1.3,
		ProjectionDays:               30,
		WasteBasePercent:             0.15,
		WasteVarianceSpan:            0.25,
		SavingsRealization:           0.8,
		UtilizationFloor:             20,
		SyntheticAttributionFraction: 0.92,
		LowCPUThresholdPercent:       5,
		TrendThresholdPercent:        5,
		HighPrioritySharePercent:     25,
		MediumPrioritySharePercent:   10,
	}
}

// Validate checks the policy ranges
func (p Policy) Validate() error {
	if p.AnomalyThreshold <= 1.0 {
		return fmt.Errorf("anomaly threshold must be > 1.0")
	}
	if p.ProjectionDays <= 0 {
		return fmt.Errorf("projection days must be positive")
	}
	if p.WasteBasePercent < 0 || p.WasteVarianceSpan < 0 || p.WasteBasePercent+p.WasteVarianceSpan > 1 {
		return fmt.Errorf("waste range must lie within [0, 1]")
	}
	if p.SavingsRealization < 0 || p.SavingsRealization > 1 {
		return fmt.Errorf("savings realization must be within [0, 1]")
	}
	if p.UtilizationFloor < 0 || p.UtilizationFloor > 100 {
		return fmt.Errorf("utilization floor must be within [0, 100]")
	}
	if p.SyntheticAttributionFraction <= 0 || p.SyntheticAttributionFraction > 1 {
		return fmt.Errorf("synthetic attribution fraction must be within (0, 1]")
	}
	if p.LowCPUThresholdPercent < 0 || p.LowCPUThresholdPercent > 100 {
		return fmt.Errorf("low CPU threshold must be within [0, 100]")
	}
	if p.MediumPrioritySharePercent > p.HighPrioritySharePercent {
		return fmt.Errorf("medium priority share cannot exceed high priority share")
	}
	return nil
}

// fileConfig is the on-disk shape of the optional config file
type fileConfig struct {
	Policy         Policy            `koanf:"policy"`
	TagKeys        map[string]string `koanf:"tag-keys"`
	AllowedRegions []string          `koanf:"allowed-regions"`
}

// LoadFile merges the YAML file at path into c. A missing file is not an error.
func (c *Config) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return errors.Wrapf(err, "failed to read config %s", path)
	}

	fc := fileConfig{Policy: c.Policy}
	if err := k.Unmarshal("", &fc); err != nil {
		return errors.Wrapf(err, "failed to parse config %s", path)
	}

	c.Policy = fc.Policy
	for name, tag := range fc.TagKeys {
		dim, ok := models.ParseDimension(name)
		if !ok || !dim.IsOrganizational() {
			return errors.Errorf("tag-keys: %q is not an organizational dimension", name)
		}
		c.TagKeys[dim] = strings.TrimSpace(tag)
	}
	if len(fc.AllowedRegions) > 0 && len(c.AllowedRegions) == 0 {
		c.AllowedRegions = fc.AllowedRegions
	}
	return nil
}
