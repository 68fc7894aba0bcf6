package service

import (
	"net/http"
	"strings"

	"kcgate/internal/directive"
	"kcgate/internal/model"
)

// relayStrippedHeaders are removed from every relayed response. The body is
// relayed decoded and re-framed by the server, so these no longer apply.
var relayStrippedHeaders = []string{
	"Content-Encoding",
	"Transfer-Encoding",
	"Content-Length",
}

// BuildForwardHeaders drops control headers and Host from in, then applies
// order: listed names first in the given order, every other field after them
// in its original relative order. Names compare case-insensitively. Fields are
// only moved, never added or removed.
func BuildForwardHeaders(in model.HeaderList, order []string) model.HeaderList {
	filtered := make(model.HeaderList, 0, len(in))
	for _, f := range in {
		if directive.IsControlHeader(f.Name) || strings.EqualFold(f.Name, "Host") {
			continue
		}
		filtered = append(filtered, f)
	}

	if len(order) == 0 {
		return filtered
	}

	out := make(model.HeaderList, 0, len(filtered))
	emitted := make([]bool, len(filtered))
	for _, name := range order {
		for i, f := range filtered {
			if !emitted[i] && strings.EqualFold(f.Name, name) {
				out = append(out, f)
				emitted[i] = true
			}
		}
	}
	for i, f := range filtered {
		if !emitted[i] {
			out = append(out, f)
		}
	}
	return out
}

// Relay returns resp with the framing headers removed.
func Relay(resp *model.UpstreamResponse) *model.UpstreamResponse {
	h := resp.Header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	for _, k := range relayStrippedHeaders {
		h.Del(k)
	}
	return &model.UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     h,
		Body:       resp.Body,
	}
}
