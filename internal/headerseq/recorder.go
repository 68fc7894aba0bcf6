// Package headerseq records the order in which request header names arrive on
// the wire. net/http hands handlers an http.Header map, so the order is gone
// by the time a handler runs; a listener wrapper sees the raw bytes first.
package headerseq

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/net/http/httpguts"
)

const (
	// maxLineBytes bounds a single buffered line; anything longer stops recording.
	maxLineBytes = 1 << 20
	// maxPending bounds heads recorded but not yet claimed by a handler.
	maxPending = 32
)

type state int

const (
	stateRequestLine state = iota
	stateHeaders
	stateBody
	stateChunkSize
	stateChunkData
	stateChunkEnd
	stateTrailer
	stateStopped
)

// head is one recorded request head.
type head struct {
	method string
	target string
	names  []string
}

// recorder follows HTTP/1.x framing on one connection. It only needs to know
// where each head starts and ends, so bodies are skipped by length.
type recorder struct {
	mu sync.Mutex

	state     state
	line      []byte
	cur       head
	length    int64
	chunked   bool
	upgrade   bool
	remaining int64

	pending []head
}

// feed consumes bytes in the order the server read them.
func (r *recorder) feed(p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(p) > 0 && r.state != stateStopped {
		switch r.state {
		case stateBody, stateChunkData:
			n := min(int64(len(p)), r.remaining)
			p = p[n:]
			r.remaining -= n
			if r.remaining > 0 {
				continue
			}
			if r.state == stateBody {
				r.state = stateRequestLine
			} else {
				r.state = stateChunkEnd
			}
		default:
			i := bytes.IndexByte(p, '\n')
			if i < 0 {
				r.buffer(p)
				return
			}
			r.buffer(p[:i])
			p = p[i+1:]
			if r.state == stateStopped {
				return
			}
			line := string(bytes.TrimSuffix(r.line, []byte("\r")))
			r.line = r.line[:0]
			r.handleLine(line)
		}
	}
}

func (r *recorder) buffer(p []byte) {
	if len(r.line)+len(p) > maxLineBytes {
		r.stop()
		return
	}
	r.line = append(r.line, p...)
}

func (r *recorder) stop() {
	r.state = stateStopped
	r.line = nil
}

func (r *recorder) handleLine(line string) {
	switch r.state {
	case stateRequestLine:
		if line == "" {
			return
		}
		method, rest, ok1 := strings.Cut(line, " ")
		target, proto, ok2 := strings.Cut(rest, " ")
		if !ok1 || !ok2 || !strings.HasPrefix(proto, "HTTP/1.") {
			r.stop()
			return
		}
		r.cur = head{method: method, target: target}
		r.length, r.chunked, r.upgrade = 0, false, false
		r.state = stateHeaders

	case stateHeaders:
		if line == "" {
			r.endHead()
			return
		}
		if line[0] == ' ' || line[0] == '\t' {
			return // obsolete line folding
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			r.stop()
			return
		}
		r.cur.names = append(r.cur.names, name)
		r.observe(name, strings.TrimSpace(value))

	case stateChunkSize:
		size, _, _ := strings.Cut(line, ";")
		n, err := strconv.ParseInt(strings.TrimSpace(size), 16, 64)
		if err != nil || n < 0 {
			r.stop()
			return
		}
		if n == 0 {
			r.state = stateTrailer
			return
		}
		r.remaining = n
		r.state = stateChunkData

	case stateChunkEnd:
		if line != "" {
			r.stop()
			return
		}
		r.state = stateChunkSize

	case stateTrailer:
		if line == "" {
			r.state = stateRequestLine
		}
	}
}

// observe tracks the headers that decide how the body is framed.
func (r *recorder) observe(name, value string) {
	switch {
	case strings.EqualFold(name, "Content-Length"):
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n < 0 {
			r.stop()
			return
		}
		r.length = n
	case strings.EqualFold(name, "Transfer-Encoding"):
		codings := strings.Split(value, ",")
		r.chunked = strings.EqualFold(strings.TrimSpace(codings[len(codings)-1]), "chunked")
	case strings.EqualFold(name, "Connection"):
		if httpguts.HeaderValuesContainsToken([]string{value}, "upgrade") {
			r.upgrade = true
		}
	}
}

func (r *recorder) endHead() {
	if len(r.pending) == maxPending {
		r.pending = r.pending[1:]
	}
	r.pending = append(r.pending, r.cur)

	switch {
	case r.cur.method == http.MethodConnect || r.upgrade:
		// The connection leaves HTTP/1.x framing after this request.
		r.stop()
	case r.chunked:
		r.state = stateChunkSize
	case r.length > 0:
		r.remaining = r.length
		r.state = stateBody
	default:
		r.state = stateRequestLine
	}
	r.cur = head{}
}

// take returns the header names of the oldest recorded head that matches
// method and target, discarding any older unmatched heads.
func (r *recorder) take(method, target string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, h := range r.pending {
		if h.method == method && h.target == target {
			r.pending = r.pending[i+1:]
			return h.names
		}
	}
	return nil
}
