package handler

import (
	"io"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"

	"kcgate/internal/headerseq"
	"kcgate/internal/metrics"
	"kcgate/internal/middleware"
	"kcgate/internal/model"
	"kcgate/internal/service"
)

// proxyCredentialPattern matches the password part of a URL userinfo.
var proxyCredentialPattern = regexp.MustCompile(`(://[^:/@\s"]*:)[^@\s"]+@`)

// ForwardHandler serves the gateway endpoint.
type ForwardHandler struct {
	service *service.ForwardService
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewForwardHandler creates a ForwardHandler.
// The metrics parameter is optional; pass nil to disable outcome counting.
func NewForwardHandler(svc *service.ForwardService, m *metrics.Metrics, logger *slog.Logger) *ForwardHandler {
	return &ForwardHandler{
		service: svc,
		metrics: m,
		logger:  logger.With("component", "forward_handler"),
	}
}

// Handle runs the forwarding pipeline for one request and writes its outcome:
// the target's response on success, otherwise a JSON error.
func (h *ForwardHandler) Handle(c echo.Context) error {
	req := c.Request()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		// BodyLimit reports oversized bodies through the read error.
		return err
	}

	in := &model.IncomingRequest{
		Method: req.Method,
		Host:   req.Host,
		Header: headerseq.Fields(req),
		Body:   body,
	}

	outcome := h.service.Forward(req.Context(), in)
	if h.metrics != nil {
		h.metrics.Outcomes.WithLabelValues(outcome.Kind.String()).Inc()
	}

	if outcome.Kind != model.OutcomeRelayed {
		return h.writeFailure(c, outcome)
	}
	return h.writeRelayed(c, outcome.Response)
}

func (h *ForwardHandler) writeFailure(c echo.Context, outcome model.Outcome) error {
	msg := sanitizeError(outcome.Message)
	status := outcome.Status()

	attrs := []any{
		"outcome", outcome.Kind.String(),
		"status", status,
		"err", msg,
		"method", c.Request().Method,
		"request_id", middleware.GetRequestID(c),
	}
	if outcome.Kind == model.OutcomeTransportError {
		h.logger.Error("forward failed", attrs...)
	} else {
		h.logger.Warn("forward rejected", attrs...)
	}

	return c.JSON(status, map[string]string{"error": msg})
}

// writeRelayed copies the target's response. Multi-valued fields are kept.
// The server is stopped from adding Content-Type or Date fields the target
// did not send.
func (h *ForwardHandler) writeRelayed(c echo.Context, resp *model.UpstreamResponse) error {
	dst := c.Response().Header()
	for key, vals := range resp.Header {
		for _, v := range vals {
			dst.Add(key, v)
		}
	}
	for _, key := range []string{echo.HeaderContentType, "Date"} {
		if _, ok := dst[key]; !ok {
			dst[key] = nil
		}
	}

	c.Response().WriteHeader(resp.StatusCode)
	if len(resp.Body) == 0 || !bodyAllowed(c.Request().Method, resp.StatusCode) {
		return nil
	}
	if _, err := c.Response().Write(resp.Body); err != nil {
		h.logger.Error("writing response body",
			"err", err,
			"request_id", middleware.GetRequestID(c),
		)
	}
	return nil
}

// bodyAllowed reports whether a response with this status may carry a body.
func bodyAllowed(method string, status int) bool {
	switch {
	case method == http.MethodHead:
		return false
	case status >= 100 && status < 200:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}

// sanitizeError redacts proxy passwords from messages that may contain proxy URLs.
func sanitizeError(msg string) string {
	return proxyCredentialPattern.ReplaceAllString(msg, "${1}xxxxx@")
}
