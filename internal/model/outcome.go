package model

import "net/http"

// OutcomeKind classifies how a forwarded request ended.
type OutcomeKind int

const (
	OutcomeRelayed OutcomeKind = iota
	OutcomeConfigError
	OutcomeUnsupportedMethod
	OutcomeTransportError
)

var outcomeNames = map[OutcomeKind]string{
	OutcomeRelayed:           "relayed",
	OutcomeConfigError:       "config_error",
	OutcomeUnsupportedMethod: "unsupported_method",
	OutcomeTransportError:    "transport_error",
}

func (k OutcomeKind) String() string {
	if s, ok := outcomeNames[k]; ok {
		return s
	}
	return "unknown"
}

// Outcome is the result of one pass through the forwarding pipeline.
// Response is set only for OutcomeRelayed; Message only for the failures.
type Outcome struct {
	Kind     OutcomeKind
	Response *UpstreamResponse
	Message  string
}

// Relayed wraps a sanitized upstream response.
func Relayed(resp *UpstreamResponse) Outcome {
	return Outcome{Kind: OutcomeRelayed, Response: resp}
}

// ConfigError reports a bad or missing control header.
func ConfigError(msg string) Outcome {
	return Outcome{Kind: OutcomeConfigError, Message: msg}
}

// UnsupportedMethod reports a method the dispatcher does not forward.
func UnsupportedMethod(msg string) Outcome {
	return Outcome{Kind: OutcomeUnsupportedMethod, Message: msg}
}

// TransportError reports a failure talking to the target or proxy.
func TransportError(msg string) Outcome {
	return Outcome{Kind: OutcomeTransportError, Message: msg}
}

// Status returns the HTTP status the caller receives for this outcome.
func (o Outcome) Status() int {
	switch o.Kind {
	case OutcomeRelayed:
		if o.Response != nil {
			return o.Response.StatusCode
		}
		return http.StatusBadGateway
	case OutcomeConfigError:
		return http.StatusBadRequest
	case OutcomeUnsupportedMethod:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusBadGateway
	}
}
