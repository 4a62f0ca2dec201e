package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/opscart/cloud-cost-observer/pkg/apierror"
	"github.com/opscart/cloud-cost-observer/pkg/dashboard"
	"github.com/opscart/cloud-cost-observer/pkg/datasource"
	"github.com/opscart/cloud-cost-observer/pkg/metrics"
	"github.com/opscart/cloud-cost-observer/pkg/reporter"
	"github.com/opscart/cloud-cost-observer/pkg/server"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var (
	listenAddr      string
	refreshSchedule string
	watchSchedule   string
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API and Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().StringVar(&listenAddr, "addr", cfg.ListenAddr, "Listen address")
	cmd.Flags().StringVar(&refreshSchedule, "refresh", "@every 5m",
		"Cron schedule for refreshing the exported gauges (empty disables)")
	return cmd
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print KPIs on a schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
	cmd.Flags().StringVar(&watchSchedule, "every", "@every 1m", "Cron schedule")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	m := metrics.New()
	svc, b, err := newService(ctx, m)
	if err != nil {
		return err
	}
	defer b.Close()

	srv := server.New(svc, m, server.Info{
		Region:   cfg.Region,
		AuthMode: cfg.AuthMode,
		Backend:  cfg.Backend,
	}, slog.Default())

	if refreshSchedule != "" {
		scheduler := cron.New()
		if _, err := scheduler.AddFunc(refreshSchedule, func() { refreshGauges(ctx, svc) }); err != nil {
			return fmt.Errorf("invalid refresh schedule %q: %w", refreshSchedule, err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		go refreshGauges(ctx, svc)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(listenAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// refreshGauges recomputes the payloads so /metrics stays current between requests
func refreshGauges(ctx context.Context, svc *dashboard.Service) {
	if _, err := svc.CostKpis(ctx, cfg.LookbackDays); err != nil {
		slog.Warn("kpi refresh failed", "error", apierror.Classify(err, apierror.SurfaceCost))
	}
	if _, err := svc.Instances(ctx, datasource.RegionAll); err != nil {
		slog.Warn("instance refresh failed", "error", apierror.Classify(err, apierror.SurfaceInstances))
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	svc, b, err := newService(ctx, nil)
	if err != nil {
		return err
	}
	defer b.Close()

	out := reporter.New(format, os.Stdout)
	tick := func() {
		kpis, err := svc.CostKpis(ctx, cfg.LookbackDays)
		if err != nil {
			slog.Error("kpi refresh failed", "error", apierror.Classify(err, apierror.SurfaceCost))
			return
		}
		logInfo("%s", kpis.LastUpdated.Format(time.RFC3339))
		if err := out.Kpis(kpis); err != nil {
			slog.Error("failed to render kpis", "error", err)
		}
	}

	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := scheduler.AddFunc(watchSchedule, tick); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", watchSchedule, err)
	}

	tick()
	scheduler.Start()
	<-ctx.Done()
	<-scheduler.Stop().Done()
	return nil
}
