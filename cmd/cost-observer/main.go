package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/opscart/cloud-cost-observer/pkg/apierror"
	"github.com/opscart/cloud-cost-observer/pkg/attribution"
	"github.com/opscart/cloud-cost-observer/pkg/config"
	"github.com/opscart/cloud-cost-observer/pkg/dashboard"
	"github.com/opscart/cloud-cost-observer/pkg/datasource"
	"github.com/opscart/cloud-cost-observer/pkg/metrics"
	"github.com/opscart/cloud-cost-observer/pkg/reporter"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	backendFlag  string
	orgSource    string
	region       string
	days         int
	outputFormat string
	verbose      bool
	configPath   string
	monthly      bool

	// Attribution flags
	dimension string
	compare   bool
	limit     int

	// Global config
	cfg    *config.Config
	format reporter.ReportFormat
)

func logVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

func logInfo(msg string, args ...interface{}) {
	if format == reporter.FormatText {
		fmt.Printf("[INFO] "+msg+"\n", args...)
	}
}

func main() {
	// Initialize config
	cfg = config.NewConfig()

	var rootCmd = &cobra.Command{
		Use:               "cost-observer",
		Short:             "Cloud cost and utilization observer",
		Long:              `Summarize cloud spend, attribute it by region, instance type or organizational tag, and flag idle compute.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&backendFlag, "backend", cfg.Backend, "Inventory backend: aws, kubernetes, mock")
	pf.StringVar(&orgSource, "org-source", cfg.OrgTagSource, "Organizational dimension source: tags, postgres, mock")
	pf.StringVar(&region, "region", cfg.Region, "AWS region")
	pf.IntVar(&days, "days", cfg.LookbackDays, "Lookback window in days")
	pf.StringVarP(&outputFormat, "output", "o", cfg.OutputFormat, "Output format: text, json, yaml, csv")
	pf.BoolVarP(&verbose, "verbose", "v", cfg.Verbose, "Enable verbose logging")
	pf.StringVar(&configPath, "config", cfg.ConfigPath, "Policy file (YAML)")
	pf.BoolVar(&monthly, "monthly", false, "Use the 30-day preset")

	kpisCmd := &cobra.Command{
		Use:   "kpis",
		Short: "Show total spend, burn rate, projection and anomaly",
		Args:  cobra.NoArgs,
		RunE:  runKpis,
	}

	attributionCmd := &cobra.Command{
		Use:   "attribution",
		Short: "Break spend down by a dimension",
		Args:  cobra.NoArgs,
		RunE:  runAttribution,
	}
	attributionCmd.Flags().StringVarP(&dimension, "dimension", "d", "REGION",
		"REGION, INSTANCE_TYPE, USAGE_TYPE, AZ, TEAM, PROJECT, RESEARCHER or JOB_TYPE")
	attributionCmd.Flags().BoolVar(&compare, "compare", false, "Compare with the previous period")
	attributionCmd.Flags().IntVar(&limit, "limit", 0, "Show only the top N buckets (0 = all)")

	instancesCmd := &cobra.Command{
		Use:   "instances",
		Short: "List instances with utilization, price and waste indicators",
		Args:  cobra.NoArgs,
		RunE:  runInstances,
	}

	rootCmd.AddCommand(kpisCmd)
	rootCmd.AddCommand(attributionCmd)
	rootCmd.AddCommand(instancesCmd)
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newImportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %+v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}

// setup applies the policy file and flags on top of the environment
func setup(cmd *cobra.Command, args []string) error {
	if err := cfg.LoadFile(configPath); err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend = backendFlag
	}
	if flags.Changed("org-source") {
		cfg.OrgTagSource = orgSource
	}
	// "all" only makes sense as an instance filter
	if flags.Changed("region") && region != datasource.RegionAll {
		cfg.Region = region
	}
	if flags.Changed("days") {
		cfg.LookbackDays = days
	}
	if monthly {
		cfg.UseMonthlyPreset()
	}
	cfg.OutputFormat = outputFormat
	cfg.Verbose = verbose

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var err error
	format, err = reporter.ParseFormat(cfg.OutputFormat)
	if err != nil {
		return err
	}

	setupLogging()
	return nil
}

func setupLogging() {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(h))
}

// newService builds the backend and the dashboard service over it
func newService(ctx context.Context, m *metrics.Collector) (*dashboard.Service, *backend, error) {
	b, err := buildBackend(ctx, cfg, m, slog.Default())
	if err != nil {
		return nil, nil, err
	}

	svc := dashboard.NewService(b.sources, cfg.Policy, dashboard.Options{
		DefaultRegion:  cfg.Region,
		AllowedRegions: cfg.AllowedRegions,
	}, m, slog.Default())
	return svc, b, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runKpis(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	svc, b, err := newService(ctx, nil)
	if err != nil {
		return err
	}
	defer b.Close()

	logInfo("Backend: %s, lookback: %d days", cfg.Backend, cfg.LookbackDays)
	kpis, err := svc.CostKpis(ctx, cfg.LookbackDays)
	if err != nil {
		return apierror.Classify(err, apierror.SurfaceCost)
	}
	return reporter.New(format, os.Stdout).Kpis(kpis)
}

func runAttribution(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	svc, b, err := newService(ctx, nil)
	if err != nil {
		return err
	}
	defer b.Close()

	logInfo("Attributing %d days of spend by %s", cfg.LookbackDays, dimension)
	out, err := svc.CostAttribution(ctx, attribution.Request{
		Dimension: dimension,
		Days:      cfg.LookbackDays,
		Compare:   compare,
		Limit:     limit,
	})
	if err != nil {
		return apierror.Classify(err, apierror.SurfaceCost)
	}
	return reporter.New(format, os.Stdout).Attribution(out)
}

func runInstances(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	svc, b, err := newService(ctx, nil)
	if err != nil {
		return err
	}
	defer b.Close()

	target := cfg.Region
	if cmd.Flags().Changed("region") {
		target = region
	}

	logInfo("Scanning instances in %s", target)
	payload, err := svc.Instances(ctx, target)
	if err != nil {
		return apierror.Classify(err, apierror.SurfaceInstances)
	}
	return reporter.New(format, os.Stdout).Instances(payload)
}
