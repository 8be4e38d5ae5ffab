package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/classpoll/internal/platform/version"
)

const (
	startupProbeTimeout   = 2 * time.Second
	readinessProbeTimeout = 5 * time.Second
)

// HealthCheck is a named health check function.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type livenessResponse struct {
	Status  string  `json:"status"`
	Uptime  float64 `json:"uptime"`
	Version string  `json:"version"`
}

type readinessResponse struct {
	Status      string            `json:"status"`
	Checks      map[string]string `json:"checks"`
	Connections *int              `json:"connections,omitempty"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health", s.handleLiveness)
	s.echo.GET("/health/startup", s.handleStartup)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleStartup(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), startupProbeTimeout)
	defer cancel()

	status, resp := s.runHealthChecks(ctx)
	return writeHealth(c, status, resp)
}

// handleLiveness never consults the hub: a busy hub must not get the
// process restarted.
func (s *Server) handleLiveness(c echo.Context) error {
	resp := livenessResponse{
		Status:  "ok",
		Uptime:  s.clock.Since(s.startTime).Seconds(),
		Version: version.Version,
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessProbeTimeout)
	defer cancel()

	status, resp := s.runHealthChecks(ctx)
	if status == http.StatusOK {
		if n, err := s.hub.ConnectionCount(ctx); err == nil {
			resp.Connections = &n
		}
	}
	return writeHealth(c, status, resp)
}

// runHealthChecks runs every check and reports each result by name.
func (s *Server) runHealthChecks(ctx context.Context) (int, readinessResponse) {
	resp := readinessResponse{Status: "ready", Checks: make(map[string]string, len(s.healthChecks))}
	status := http.StatusOK

	for _, hc := range s.healthChecks {
		if err := hc.Check(ctx); err != nil {
			resp.Checks[hc.Name] = err.Error()
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[hc.Name] = "ok"
	}
	return status, resp
}

func writeHealth(c echo.Context, status int, resp readinessResponse) error {
	if err := c.JSON(status, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
