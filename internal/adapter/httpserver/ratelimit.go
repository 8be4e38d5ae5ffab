package httpserver

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pscheid92/classpoll/internal/adapter/metrics"
	"github.com/pscheid92/classpoll/internal/domain"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

// newRateLimiter throttles one route per client address. Each route gets its
// own store, so a burst of votes never eats into another route's budget.
func newRateLimiter(route string, ratePerSecond float64, burst int, redact bool, m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     max(burst, 1),
			ExpiresIn: rateLimiterExpiry,
		},
	)
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			m.RateLimited.WithLabelValues(route).Inc()
			slog.InfoContext(c.Request().Context(), "Request rate limited", "route", route, "client_ip", identifier)
			return HandleError(c, domain.ErrRateLimited, redact)
		},
	})
}
