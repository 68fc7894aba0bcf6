// Package client provides the upstream dispatcher. It speaks HTTP/1.1 on its
// own connection for every request so that header order and name spelling
// reach the target exactly as built.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kcgate/internal/config"
	"kcgate/internal/metrics"
	"kcgate/internal/model"
)

const tracerName = "kcgate/client"

// Dispatcher sends OutboundRequests to their targets, directly or through a
// proxy. Certificates presented by targets and HTTPS proxies are not verified.
type Dispatcher struct {
	dialer  *net.Dialer
	timeout time.Duration
	maxBody int64
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// NewDispatcher creates a Dispatcher from the upstream settings.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewDispatcher(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, tp trace.TracerProvider) *Dispatcher {
	return &Dispatcher{
		dialer: &net.Dialer{
			Timeout:   time.Duration(cfg.Upstream.DialTimeoutSeconds) * time.Second,
			KeepAlive: -1,
		},
		timeout: time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		maxBody: cfg.Upstream.MaxResponseBytes,
		logger:  logger.With("component", "dispatcher"),
		metrics: m,
		tracer:  tp.Tracer(tracerName),
	}
}

// Do sends req and returns the target's response with the body fully read and
// content-decoded. The inbound caller going away does not cancel the call;
// only the dispatcher timeout does.
func (d *Dispatcher) Do(ctx context.Context, req *model.OutboundRequest) (*model.UpstreamResponse, error) {
	target, err := parseTarget(req.URL)
	if err != nil {
		return nil, err
	}
	var proxyURL *url.URL
	if req.Proxy != "" {
		if proxyURL, err = parseProxy(req.Proxy); err != nil {
			return nil, err
		}
	}
	via := routeName(proxyURL)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	ctx, span := d.tracer.Start(ctx, "upstream "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("server.address", target.Host),
			attribute.String("kcgate.via", via),
		),
	)
	defer span.End()

	d.logger.Debug("upstream request",
		"method", req.Method,
		"host", target.Host,
		"via", via,
	)

	start := time.Now()
	resp, err := d.roundTrip(ctx, req, target, proxyURL)
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)
	if d.metrics != nil {
		d.metrics.UpstreamDuration.WithLabelValues(method, via).Observe(duration)
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
			err = fmt.Errorf("upstream request timed out after %s: %w", d.timeout, err)
		}
		if d.metrics != nil {
			d.metrics.UpstreamErrors.WithLabelValues(via).Inc()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if d.metrics != nil {
		d.metrics.UpstreamResponses.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	return resp, nil
}

func (d *Dispatcher) roundTrip(ctx context.Context, req *model.OutboundRequest, target, proxyURL *url.URL) (*model.UpstreamResponse, error) {
	rt, err := d.connect(ctx, target, proxyURL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rt.conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = rt.conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = rt.conn.Close() })
	defer stop()

	bw := bufio.NewWriter(rt.conn)
	if err := writeRequest(bw, req, target, rt); err != nil {
		return nil, fmt.Errorf("write request to %s: %w", target.Host, err)
	}
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("write request to %s: %w", target.Host, err)
	}

	resp, err := readResponse(bufio.NewReader(rt.conn), req.Method)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read response from %s: %w", target.Host, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := readLimited(resp.Body, d.maxBody)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read response body from %s: %w", target.Host, err)
	}

	codings := contentCodings(resp.Header)
	body, err := decodeBody(raw, codings, d.maxBody)
	switch {
	case errors.Is(err, errUnsupportedCoding):
		d.logger.Warn("relaying body with unsupported content coding",
			"codings", codings,
			"host", target.Host,
		)
		body = raw
	case err != nil:
		return nil, fmt.Errorf("decode response body from %s: %w", target.Host, err)
	}

	return &model.UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// readResponse reads the final response, skipping interim 1xx responses.
func readResponse(br *bufio.Reader, method string) (*http.Response, error) {
	req := &http.Request{Method: method}
	for {
		resp, err := http.ReadResponse(br, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 100 && resp.StatusCode < 200 && resp.StatusCode != http.StatusSwitchingProtocols {
			_ = resp.Body.Close()
			continue
		}
		return resp, nil
	}
}

// readLimited reads r to the end, failing once more than limit bytes arrive.
// A limit of zero or less disables the check.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("response body exceeds %d bytes", limit)
	}
	return b, nil
}
