package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/classpoll/internal/adapter/metrics"
	"github.com/pscheid92/classpoll/internal/app"
	"github.com/pscheid92/classpoll/internal/domain"
	"github.com/pscheid92/classpoll/internal/platform/config"
	"github.com/pscheid92/classpoll/internal/poll"
)

type hubService interface {
	CreatePoll(ctx context.Context, req poll.CreateRequest) (*domain.Poll, error)
	CastVote(ctx context.Context, pollID, option, voterID string) (domain.PollStats, error)
	Results(ctx context.Context, pollID string) (domain.PollStats, error)
	History(ctx context.Context) ([]domain.PollStats, error)
	VoteStatus(ctx context.Context, pollID, voterID string) (app.VoteStatus, error)
	ConnectionCount(ctx context.Context) (int, error)
}

type websocketHandler interface {
	Serve(w http.ResponseWriter, r *http.Request, clientIP string)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	hub       hubService
	websocket websocketHandler
	voters    VoterResolver

	metricsHandler http.Handler
	httpMetrics    *metrics.HTTPMetrics
	healthChecks   []HealthCheck
	startTime      time.Time
}

func NewServer(cfg *config.Config, clock clockwork.Clock, hub hubService, websocket websocketHandler, voters VoterResolver, metricsHandler http.Handler, httpMetrics *metrics.HTTPMetrics, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:           e,
		config:         cfg,
		clock:          clock,
		hub:            hub,
		websocket:      websocket,
		voters:         voters,
		metricsHandler: metricsHandler,
		httpMetrics:    httpMetrics,
		healthChecks:   healthChecks,
		startTime:      clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP exposes the router, mainly for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) handleWebSocket(c echo.Context) error {
	s.websocket.Serve(c.Response(), c.Request(), c.RealIP())
	return nil
}
