package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/classpoll/internal/adapter/httpserver"
	"github.com/pscheid92/classpoll/internal/adapter/metrics"
	"github.com/pscheid92/classpoll/internal/adapter/websocket"
	"github.com/pscheid92/classpoll/internal/app"
	"github.com/pscheid92/classpoll/internal/platform/config"
	"github.com/pscheid92/classpoll/internal/platform/logging"
	"github.com/pscheid92/classpoll/internal/platform/version"
)

func runGracefulShutdown(srv *httpserver.Server, hub *app.Hub, wsHandler *websocket.Handler) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		hub.Stop()
		if err := wsHandler.Drain(shutdownCtx); err != nil {
			slog.Warn("WebSocket connections did not close in time", "error", err)
		}
		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "build", version.Get().String())

	reg := metrics.NewRegistry()

	hub := app.NewHub(clock, app.Config{
		ChatRatePerSecond: cfg.ChatRatePerSecond,
		ChatBurst:         cfg.ChatBurst,
		ChatTimeLayout:    cfg.ChatTimeLayout,
		ServerSideExpiry:  cfg.ServerSideExpiry,
		SweepInterval:     cfg.ExpirySweepInterval,
	}, app.Metrics{
		Hub:  metrics.NewHubMetrics(reg),
		Poll: metrics.NewPollMetrics(reg),
	})

	limits := websocket.NewConnectionLimits(
		clock,
		int64(cfg.MaxWebSocketConnections),
		cfg.MaxConnectionsPerIP,
		cfg.WSConnectRate,
		cfg.WSConnectBurst,
	)
	wsHandler := websocket.NewHandler(
		hub,
		clock,
		limits,
		metrics.NewWebSocketMetrics(reg),
		websocket.NewCheckOrigin(cfg.BrowserOrigins(), !cfg.IsProduction()),
	)

	healthChecks := []httpserver.HealthCheck{
		{Name: "hub", Check: hub.Ping},
	}

	srv := httpserver.NewServer(
		cfg,
		clock,
		hub,
		wsHandler,
		httpserver.NewVoterResolver(cfg),
		metrics.Handler(reg),
		metrics.NewHTTPMetrics(reg),
		healthChecks,
	)

	done := runGracefulShutdown(srv, hub, wsHandler)

	slog.Info("Server starting", "port", cfg.Port, "server_side_expiry", cfg.ServerSideExpiry)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
