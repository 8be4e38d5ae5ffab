package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/classpoll/internal/adapter/metrics"
	"github.com/pscheid92/classpoll/internal/app"
	"github.com/pscheid92/classpoll/internal/platform/config"
	"github.com/stretchr/testify/assert"
)

type testServerConfig struct {
	cfg          *config.Config
	voters       VoterResolver
	healthChecks []HealthCheck
}

type testServerOption func(*testServerConfig)

func withHealthChecks(checks ...HealthCheck) testServerOption {
	return func(c *testServerConfig) { c.healthChecks = checks }
}

func withConfig(mutate func(*config.Config)) testServerOption {
	return func(c *testServerConfig) { mutate(c.cfg) }
}

func withVoters(r VoterResolver) testServerOption {
	return func(c *testServerConfig) { c.voters = r }
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:            "development",
		Port:              "0",
		AppURL:            "http://localhost:8080",
		VoteRatePerSecond: 100,
		VoteBurst:         100,
	}
}

func newTestServer(t *testing.T, hub hubService, opts ...testServerOption) *Server {
	t.Helper()

	tc := &testServerConfig{cfg: testConfig()}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.voters == nil {
		tc.voters = NewVoterResolver(tc.cfg)
	}

	reg := prometheus.NewRegistry()
	return NewServer(tc.cfg, clockwork.NewFakeClock(), hub, nil, tc.voters,
		metrics.Handler(reg), metrics.NewHTTPMetrics(reg), tc.healthChecks)
}

func newTestHub(t *testing.T) (*app.Hub, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	reg := prometheus.NewRegistry()
	hub := app.NewHub(clock, app.Config{}, app.Metrics{
		Hub:  metrics.NewHubMetrics(reg),
		Poll: metrics.NewPollMetrics(reg),
	})
	t.Cleanup(hub.Stop)
	return hub, clock
}

func doRequest(srv *Server, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "10.0.0.1:1234"
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestCORSOrigins(t *testing.T) {
	tests := []struct {
		name   string
		env    string
		origin string
		want   string
	}{
		{"development allows any origin", "development", "http://anything.test", "*"},
		{"production allows app origin", "production", "https://poll.example.com", "https://poll.example.com"},
		{"production allows extra origin", "production", "https://frontend.example.org", "https://frontend.example.org"},
		{"production rejects unknown origin", "production", "https://evil.test", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub, _ := newTestHub(t)
			srv := newTestServer(t, hub, withConfig(func(c *config.Config) {
				c.AppEnv = tt.env
				c.AppURL = "https://poll.example.com"
				c.AllowedOrigins = []string{"https://frontend.example.org"}
			}))

			rec := doRequest(srv, http.MethodGet, "/api/polls/history", "", map[string]string{"Origin": tt.origin})

			assert.Equal(t, tt.want, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}
