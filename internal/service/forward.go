// Package service implements the gateway's forwarding pipeline.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"kcgate/internal/directive"
	"kcgate/internal/model"
)

// Dispatcher sends a translated request to its target.
type Dispatcher interface {
	Do(ctx context.Context, req *model.OutboundRequest) (*model.UpstreamResponse, error)
}

// forwardableMethods are the methods the dispatcher issues upstream.
var forwardableMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
}

// Messages returned to the caller for configuration errors.
const (
	msgMissingTarget = "Missing x-kc-url header"
	msgInvalidProxy  = "Invalid proxy format"
)

// ForwardService runs the per-request pipeline. It holds no per-request state
// and is safe for concurrent use.
type ForwardService struct {
	dispatcher Dispatcher
	logger     *slog.Logger
	sleep      func(time.Duration)
}

// NewForwardService creates a ForwardService.
func NewForwardService(d Dispatcher, logger *slog.Logger) *ForwardService {
	return &ForwardService{
		dispatcher: d,
		logger:     logger.With("component", "forward_service"),
		sleep:      time.Sleep,
	}
}

// Forward translates in according to its control headers, dispatches it and
// returns the outcome. Validation failures never reach the dispatcher.
func (s *ForwardService) Forward(ctx context.Context, in *model.IncomingRequest) model.Outcome {
	controls, err := directive.Extract(in.Header)
	if err != nil {
		return model.ConfigError(msgMissingTarget)
	}

	d, err := directive.Build(controls, in.Host)
	if err != nil {
		if errors.Is(err, directive.ErrInvalidProxy) {
			return model.ConfigError(msgInvalidProxy)
		}
		return model.ConfigError(err.Error())
	}

	header := BuildForwardHeaders(in.Header, d.HeaderOrder)

	if !forwardableMethods[in.Method] {
		return model.UnsupportedMethod(fmt.Sprintf("Unsupported method: %s", in.Method))
	}

	if d.Delay > 0 {
		s.logger.Debug("delaying dispatch", "delay_ms", d.Delay.Milliseconds())
		s.sleep(d.Delay)
	}

	out := &model.OutboundRequest{
		Method: in.Method,
		URL:    d.TargetURL,
		Header: header,
		Proxy:  d.Proxy,
	}
	if in.Method != http.MethodGet {
		out.Body = in.Body
	}

	s.logger.Debug("forwarding request",
		"method", out.Method,
		"target", d.TargetURL,
		"via_proxy", d.Proxy != "",
		"headers", len(header),
	)

	resp, err := s.dispatcher.Do(ctx, out)
	if err != nil {
		return model.TransportError(err.Error())
	}

	return model.Relayed(Relay(resp))
}
