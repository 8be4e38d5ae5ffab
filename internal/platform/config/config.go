package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const minSessionSecretLength = 32

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	AppURL    string `env:"APP_URL" default:"http://localhost:8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// AllowedOrigins adds browser origins beyond APP_URL, e.g. a separately
	// hosted classroom frontend. Comma separated.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS"`

	SessionSecret      string        `env:"SESSION_SECRET"`
	VoterCookieEnabled bool          `env:"VOTER_COOKIE_ENABLED" default:"false"`
	SessionMaxAge      time.Duration `env:"SESSION_MAX_AGE" default:"24h"`

	MaxWebSocketConnections int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"500"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"50"`
	WSConnectRate           float64 `env:"WS_CONNECT_RATE" default:"20"`
	WSConnectBurst          int     `env:"WS_CONNECT_BURST" default:"60"`

	ServerSideExpiry    bool          `env:"SERVER_SIDE_EXPIRY" default:"false"`
	ExpirySweepInterval time.Duration `env:"EXPIRY_SWEEP_INTERVAL" default:"1s"`

	ChatRatePerSecond float64 `env:"CHAT_RATE_PER_SECOND" default:"2"`
	ChatBurst         int     `env:"CHAT_BURST" default:"5"`
	VoteRatePerSecond float64 `env:"VOTE_RATE_PER_SECOND" default:"5"`
	VoteBurst         int     `env:"VOTE_BURST" default:"10"`
	ChatTimeLayout    string  `env:"CHAT_TIME_LAYOUT" default:"03:04 PM"`
}

// IsProduction reports whether the app runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// BrowserOrigins lists APP_URL's origin followed by ALLOWED_ORIGINS,
// normalized to scheme://host and without duplicates.
func (c *Config) BrowserOrigins() []string {
	seen := make(map[string]bool)
	var origins []string
	for _, raw := range append([]string{c.AppURL}, c.AllowedOrigins...) {
		origin := originOf(raw)
		if origin == "" || seen[origin] {
			continue
		}
		seen[origin] = true
		origins = append(origins, origin)
	}
	return origins
}

func originOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, &env.Options{SliceSep: ","}); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", cfg.Port)
	}

	u, err := url.Parse(cfg.AppURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("APP_URL must be an absolute URL, got %q", cfg.AppURL)
	}

	for _, origin := range cfg.AllowedOrigins {
		if originOf(origin) == "" {
			return fmt.Errorf("ALLOWED_ORIGINS entries must be absolute URLs, got %q", origin)
		}
	}

	if cfg.VoterCookieEnabled {
		if cfg.SessionSecret == "" {
			return errors.New("SESSION_SECRET is required when VOTER_COOKIE_ENABLED is set")
		}
		if len(cfg.SessionSecret) < minSessionSecretLength {
			return fmt.Errorf("SESSION_SECRET must be at least %d characters", minSessionSecretLength)
		}
	}

	positiveInts := map[string]int{
		"MAX_WEBSOCKET_CONNECTIONS": cfg.MaxWebSocketConnections,
		"MAX_CONNECTIONS_PER_IP":    cfg.MaxConnectionsPerIP,
		"WS_CONNECT_BURST":          cfg.WSConnectBurst,
		"CHAT_BURST":                cfg.ChatBurst,
		"VOTE_BURST":                cfg.VoteBurst,
	}
	for name, value := range positiveInts {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	positiveRates := map[string]float64{
		"WS_CONNECT_RATE":      cfg.WSConnectRate,
		"CHAT_RATE_PER_SECOND": cfg.ChatRatePerSecond,
		"VOTE_RATE_PER_SECOND": cfg.VoteRatePerSecond,
	}
	for name, value := range positiveRates {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if cfg.ServerSideExpiry && cfg.ExpirySweepInterval <= 0 {
		return errors.New("EXPIRY_SWEEP_INTERVAL must be positive when SERVER_SIDE_EXPIRY is set")
	}

	return nil
}
