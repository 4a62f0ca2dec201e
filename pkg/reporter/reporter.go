package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/opscart/cloud-cost-observer/pkg/models"
	"gopkg.in/yaml.v3"
)

// ReportFormat represents the output format
type ReportFormat string

const (
	FormatText ReportFormat = "text"
	FormatJSON ReportFormat = "json"
	FormatYAML ReportFormat = "yaml"
	FormatCSV  ReportFormat = "csv"
)

// ParseFormat accepts the names the CLI's --output flag takes
func ParseFormat(s string) (ReportFormat, error) {
	switch f := ReportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatYAML, FormatCSV:
		return f, nil
	case "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown output format %q (expected text, json, yaml or csv)", s)
}

// Reporter renders dashboard payloads to a writer
type Reporter struct {
	format ReportFormat
	out    io.Writer
}

// New creates a new reporter
func New(format ReportFormat, out io.Writer) *Reporter {
	return &Reporter{
		format: format,
		out:    out,
	}
}

// Kpis renders the KPI payload
func (r *Reporter) Kpis(kpis *models.CostKpis) error {
	switch r.format {
	case FormatJSON:
		return r.writeJSON(kpis)
	case FormatYAML:
		return r.writeYAML(kpis)
	case FormatCSV:
		return KpisCSV(kpis, r.out)
	default:
		return KpisText(kpis, r.out)
	}
}

// Attribution renders the attribution payload
func (r *Reporter) Attribution(attr *models.CostAttribution) error {
	switch r.format {
	case FormatJSON:
		return r.writeJSON(attr)
	case FormatYAML:
		return r.writeYAML(attr)
	case FormatCSV:
		return AttributionCSV(attr, r.out)
	default:
		return AttributionText(attr, r.out)
	}
}

// Instances renders the instance table
func (r *Reporter) Instances(payload *models.InstancesPayload) error {
	switch r.format {
	case FormatJSON:
		return r.writeJSON(payload)
	case FormatYAML:
		return r.writeYAML(payload)
	case FormatCSV:
		return InstancesCSV(payload, r.out)
	default:
		return InstancesText(payload, r.out)
	}
}

func (r *Reporter) writeJSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func (r *Reporter) writeYAML(v any) error {
	enc := yaml.NewEncoder(r.out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return enc.Close()
}
