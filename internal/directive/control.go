// Package directive turns x-kc-* control headers into a ForwardDirective.
package directive

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"kcgate/internal/model"
)

// ControlPrefix marks headers consumed by the gateway. They are never forwarded.
const ControlPrefix = "x-kc-"

// Control header names.
const (
	HeaderURL         = "x-kc-url"
	HeaderProxy       = "x-kc-proxy"
	HeaderProtocol    = "x-kc-protocol"
	HeaderHeaderOrder = "x-kc-headerorder"
	HeaderDelay       = "x-kc-delay"
)

// ErrMissingTarget is returned when the request carries no x-kc-url.
var ErrMissingTarget = errors.New("missing x-kc-url header")

// Controls are the raw control directives of one request.
type Controls struct {
	URL         string
	Proxy       string
	Protocol    string
	HeaderOrder []string
	Delay       time.Duration
}

// Extract reads the control directives from h. Names match case-insensitively
// and the last occurrence of a repeated header wins. Only x-kc-url is required.
func Extract(h model.HeaderList) (Controls, error) {
	var c Controls

	c.URL, _ = h.Last(HeaderURL)
	if c.URL == "" {
		return Controls{}, ErrMissingTarget
	}

	c.Proxy, _ = h.Last(HeaderProxy)
	c.Protocol, _ = h.Last(HeaderProtocol)

	if order, ok := h.Last(HeaderHeaderOrder); ok {
		c.HeaderOrder = ParseHeaderOrder(order)
	}
	if delay, ok := h.Last(HeaderDelay); ok {
		c.Delay = ParseDelay(delay)
	}

	return c, nil
}

// ParseHeaderOrder splits a comma-separated list of header names, trimming
// whitespace around each entry and dropping empty ones.
func ParseHeaderOrder(s string) []string {
	var names []string
	for _, part := range strings.Split(s, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// ParseDelay interprets s as a number of milliseconds. Anything that is not a
// plain non-negative integer yields zero, which means no delay.
func ParseDelay(s string) time.Duration {
	if s == "" {
		return 0
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0
		}
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms > math.MaxInt64/int64(time.Millisecond) {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// IsControlHeader reports whether name carries the control prefix.
func IsControlHeader(name string) bool {
	return len(name) >= len(ControlPrefix) && strings.EqualFold(name[:len(ControlPrefix)], ControlPrefix)
}
