package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/opscart/cloud-cost-observer/pkg/models"
	"github.com/opscart/cloud-cost-observer/pkg/storage"
	"github.com/spf13/cobra"
)

// allocationColumns is the header import-allocations expects; the last five are optional
var allocationColumns = []string{"day", "dimension", "key", "cost_usd", "instance_count", "cpu_hours", "priority", "owner", "labels"}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-allocations <file.csv>",
		Short: "Load organizational cost allocations into PostgreSQL",
		Long: `Load per-day organizational allocations (TEAM, PROJECT, RESEARCHER, JOB_TYPE)
produced by an external chargeback pipeline. Columns:

  day,dimension,key,cost_usd[,instance_count,cpu_hours,priority,owner,labels]

labels is a semicolon-separated list of name=value pairs.`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer f.Close()

	rows, err := parseAllocations(f)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", args[0], err)
	}

	store, err := storage.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if err := store.SaveAllocations(ctx, rows); err != nil {
		return err
	}
	logInfo("Imported %d allocation row(s) from %s", len(rows), args[0])
	return nil
}

func parseAllocations(r io.Reader) ([]storage.AllocationRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty file")
		}
		return nil, err
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range allocationColumns[:4] {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var rows []storage.AllocationRow
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		row, err := parseAllocationRecord(record, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseAllocationRecord(record []string, cols map[string]int) (storage.AllocationRow, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var row storage.AllocationRow

	day, err := time.Parse(models.DateLayout, field("day"))
	if err != nil {
		return row, fmt.Errorf("invalid day %q", field("day"))
	}
	row.Day = day.Format(models.DateLayout)

	dim, ok := models.ParseDimension(field("dimension"))
	if !ok || !dim.IsOrganizational() {
		return row, fmt.Errorf("%q is not an organizational dimension", field("dimension"))
	}
	row.Dimension = dim
	row.Key = field("key")

	cost, err := strconv.ParseFloat(field("cost_usd"), 64)
	if err != nil || cost < 0 {
		return row, fmt.Errorf("invalid cost_usd %q", field("cost_usd"))
	}
	row.CostUsd = cost

	if v := field("instance_count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return row, fmt.Errorf("invalid instance_count %q", v)
		}
		row.InstanceCount = &n
	}
	if v := field("cpu_hours"); v != "" {
		h, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return row, fmt.Errorf("invalid cpu_hours %q", v)
		}
		row.CPUHours = &h
	}
	if v := field("priority"); v != "" {
		row.Priority = models.ParsePriority(strings.ToLower(v))
		if row.Priority == "" {
			return row, fmt.Errorf("invalid priority %q", v)
		}
	}
	row.Owner = field("owner")

	if v := field("labels"); v != "" {
		row.Labels = make(map[string]string)
		for _, pair := range strings.Split(v, ";") {
			name, value, found := strings.Cut(pair, "=")
			if !found || strings.TrimSpace(name) == "" {
				return row, fmt.Errorf("invalid label %q", pair)
			}
			row.Labels[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
	}
	return row, nil
}
