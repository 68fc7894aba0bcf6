package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"kcgate/internal/metrics"
)

// MetricsMiddleware returns an Echo middleware that records Prometheus metrics
// for each inbound request. Requests are labelled by the route they matched,
// so a forwarded request always counts under "/" whatever its target.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()

			err := next(c)

			code := responseStatus(c, err)
			status := strconv.Itoa(code)
			method := metrics.NormalizeMethod(c.Request().Method)
			path := metrics.NormalizePath(routePath(c, code))
			duration := time.Since(start).Seconds()

			m.RequestsTotal.WithLabelValues(method, status, path).Inc()
			m.RequestDuration.WithLabelValues(method, status, path).Observe(duration)

			return err
		}
	}
}

// responseStatus resolves the status the client will see. An *echo.HTTPError
// returned before anything was written is rendered later by Echo's error
// handler with its own code; any other error becomes a 500.
func responseStatus(c echo.Context, err error) int {
	res := c.Response()
	if err == nil || res.Committed {
		return res.Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// routePath returns the matched route template, or the raw path when no
// route matched.
func routePath(c echo.Context, status int) string {
	if status != http.StatusNotFound {
		if p := c.Path(); p != "" && p != "/*" {
			return p
		}
	}
	return c.Request().URL.Path
}
