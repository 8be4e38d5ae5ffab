package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthOK(_ context.Context) error { return nil }

func healthErr(msg string) func(context.Context) error {
	return func(_ context.Context) error { return errors.New(msg) }
}

func TestHandleStartup(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/startup", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	hub, _ := newTestHub(t)
	srv := newTestServer(t, hub, withHealthChecks(HealthCheck{Name: "hub", Check: healthOK}))

	err := srv.handleStartup(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready","checks":{"hub":"ok"}}`, rec.Body.String())
}

func TestHandleLiveness(t *testing.T) {
	hub, _ := newTestHub(t)
	srv := newTestServer(t, hub, withHealthChecks(HealthCheck{Name: "hub", Check: healthErr("down")}))

	for _, path := range []string{"/health", "/health/live"} {
		rec := doRequest(srv, http.MethodGet, path, "", nil)

		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)
		assert.Contains(t, rec.Body.String(), `"uptime"`)
		assert.Contains(t, rec.Body.String(), `"version":"dev"`)
	}
}

func TestHandleReadiness_HubPing(t *testing.T) {
	hub, _ := newTestHub(t)
	srv := newTestServer(t, hub, withHealthChecks(HealthCheck{Name: "hub", Check: hub.Ping}))

	rec := doRequest(srv, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready","checks":{"hub":"ok"},"connections":0}`, rec.Body.String())

	hub.Stop()

	rec = doRequest(srv, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"unhealthy"`)
	assert.NotContains(t, rec.Body.String(), `"connections"`)
}

func TestHandleReadiness_ReportsEveryCheck(t *testing.T) {
	hub, _ := newTestHub(t)
	srv := newTestServer(t, hub, withHealthChecks(
		HealthCheck{Name: "hub", Check: healthOK},
		HealthCheck{Name: "sweeper", Check: healthErr("stalled")},
	))

	rec := doRequest(srv, http.MethodGet, "/health/ready", "", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"hub":"ok","sweeper":"stalled"}}`, rec.Body.String())
}

func TestHandleVersion(t *testing.T) {
	hub, _ := newTestHub(t)
	srv := newTestServer(t, hub)

	rec := doRequest(srv, http.MethodGet, "/version", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"name":"classpoll"`)
	assert.Contains(t, body, `"version"`)
	assert.Contains(t, body, `"commit"`)
	assert.Contains(t, body, `"go_version"`)
	assert.Contains(t, body, `"protocol":1`)
}

func TestMetricsEndpoint(t *testing.T) {
	hub, _ := newTestHub(t)
	srv := newTestServer(t, hub)

	doRequest(srv, http.MethodGet, "/api/polls/history", "", nil)
	rec := doRequest(srv, http.MethodGet, "/metrics", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `classpoll_http_requests_total{method="GET",route="/api/polls/history",status_code="200"} 1`)
}
