// Package server exposes the dashboard payloads over HTTP.
//
// Endpoints:
//
//	GET /api/cost/kpis?days=7                                   -> CostKpis
//	GET /api/cost/attribution?dimension=TEAM&days=7&compare=true -> CostAttribution
//	GET /api/ec2/instances?region=us-east-1|all                  -> {instances: [...]}
//	GET /api/test                                               -> configuration echo
//	GET /api/health                                             -> liveness
//	GET /metrics                                                -> Prometheus exposition
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/opscart/cloud-cost-observer/pkg/apierror"
	"github.com/opscart/cloud-cost-observer/pkg/attribution"
	"github.com/opscart/cloud-cost-observer/pkg/dashboard"
	"github.com/opscart/cloud-cost-observer/pkg/metrics"
)

// Info is what /api/test reports about the running configuration
type Info struct {
	Region   string
	AuthMode string
	Backend  string
}

// Server is the HTTP front of a dashboard.Service
type Server struct {
	echo    *echo.Echo
	svc     *dashboard.Service
	info    Info
	logger  *slog.Logger
	started time.Time
}

func New(svc *dashboard.Service, m *metrics.Collector, info Info, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, svc: svc, info: info, logger: logger, started: time.Now()}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger)

	e.GET("/api/cost/kpis", s.handleKpis)
	e.GET("/api/cost/attribution", s.handleAttribution)
	e.GET("/api/ec2/instances", s.handleInstances)
	e.GET("/api/test", s.handleTest)
	e.GET("/api/health", s.handleHealth)
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	return s
}

// Handler exposes the router, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	s.logger.Info("http.start", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		s.logger.Debug("http.request",
			"method", c.Request().Method,
			"path", c.Path(),
			"status", c.Response().Status,
			"duration", time.Since(start),
			"requestId", c.Response().Header().Get(echo.HeaderXRequestID))
		return err
	}
}

func (s *Server) handleKpis(c echo.Context) error {
	days, err := intParam(c, "days")
	if err != nil {
		return s.fail(c, err, apierror.SurfaceCost)
	}

	kpis, err := s.svc.CostKpis(c.Request().Context(), days)
	if err != nil {
		return s.fail(c, err, apierror.SurfaceCost)
	}
	return c.JSON(http.StatusOK, kpis)
}

func (s *Server) handleAttribution(c echo.Context) error {
	days, err := intParam(c, "days")
	if err != nil {
		return s.fail(c, err, apierror.SurfaceCost)
	}
	limit, err := intParam(c, "limit")
	if err != nil {
		return s.fail(c, err, apierror.SurfaceCost)
	}
	compare := false
	if raw := c.QueryParam("compare"); raw != "" {
		compare, err = strconv.ParseBool(raw)
		if err != nil {
			return s.fail(c, apierror.InvalidRequest("compare must be a boolean, got %q", raw), apierror.SurfaceCost)
		}
	}

	out, err := s.svc.CostAttribution(c.Request().Context(), attribution.Request{
		Dimension: c.QueryParam("dimension"),
		Days:      days,
		Compare:   compare,
		Limit:     limit,
	})
	if err != nil {
		return s.fail(c, err, apierror.SurfaceCost)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleInstances(c echo.Context) error {
	payload, err := s.svc.Instances(c.Request().Context(), c.QueryParam("region"))
	if err != nil {
		return s.fail(c, err, apierror.SurfaceInstances)
	}
	return c.JSON(http.StatusOK, payload)
}

func (s *Server) handleTest(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "OK",
		"message": "Test endpoint working",
		"awsConfig": map[string]string{
			"region":   orNotSet(s.info.Region),
			"authMode": orNotSet(s.info.AuthMode),
		},
		"backend": orNotSet(s.info.Backend),
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

// fail classifies err and writes it as the JSON error payload
func (s *Server) fail(c echo.Context, err error, surface apierror.Surface) error {
	apiErr := apierror.Classify(err, surface)
	level := slog.LevelWarn
	if apiErr.Kind == apierror.KindInternal {
		level = slog.LevelError
	}
	s.logger.Log(c.Request().Context(), level, "http.request.error",
		"path", c.Path(),
		"kind", apiErr.Kind,
		"code", apiErr.Code,
		"errorId", apiErr.ErrorID,
		"error", err)
	return c.JSON(apiErr.Status(), apiErr)
}

func intParam(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apierror.InvalidRequest("%s must be an integer, got %q", name, raw)
	}
	return v, nil
}

func orNotSet(v string) string {
	if v == "" {
		return "not-set"
	}
	return v
}
