package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kcgate/internal/config"
	"kcgate/internal/metrics"
	"kcgate/internal/middleware"
)

// gatewayMethods are accepted at the root. OPTIONS and PATCH are answered
// with 405 by the pipeline.
var gatewayMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
	http.MethodOptions,
	http.MethodPatch,
}

// RegisterRoutes wires all route handlers onto the Echo instance. The metrics
// endpoint is mounted only when m is non-nil and metrics are enabled.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, fwd *ForwardHandler, health *HealthHandler, m *metrics.Metrics) {
	secure := middleware.SecurityHeaders()

	e.GET("/healthz", health.Healthz, secure)
	e.GET("/kc/status", health.Status, secure)

	if m != nil && cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(
			promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		), secure)
	}

	e.Match(gatewayMethods, "/", fwd.Handle)
}
