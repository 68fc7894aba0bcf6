package model

import (
	"net/http"
	"time"
)

// IncomingRequest is the inbound call as seen by the gateway.
type IncomingRequest struct {
	Method string
	Host   string
	Header HeaderList
	Body   []byte
}

// ForwardDirective holds the forwarding instructions derived from control
// headers. It is built once per request and passed by value.
type ForwardDirective struct {
	TargetURL    string // always absolute
	Proxy        string // canonical proxy URL; empty for a direct connection
	ProtocolHint string
	HeaderOrder  []string
	Delay        time.Duration
}

// OutboundRequest is the translated request handed to the dispatcher.
type OutboundRequest struct {
	Method string
	URL    string
	Header HeaderList
	Body   []byte
	Proxy  string
}

// UpstreamResponse is what the target answered, with the body already
// transfer- and content-decoded.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}
