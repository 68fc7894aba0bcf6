package headerseq

import (
	"context"
	"net"
	"net/http"
	"net/textproto"
	"slices"

	"kcgate/internal/model"
)

type connKey struct{}

// NewListener wraps ln so that every accepted connection records the header
// order of the requests read from it. Use it together with ConnContext.
func NewListener(ln net.Listener) net.Listener {
	return &listener{Listener: ln}
}

type listener struct {
	net.Listener
}

func (l *listener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return &conn{Conn: c, rec: &recorder{}}, nil
}

type conn struct {
	net.Conn
	rec *recorder
}

func (c *conn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if n > 0 {
		c.rec.feed(p[:n])
	}
	return n, err
}

// CloseWrite keeps the half-close the server performs on *net.TCPConn.
func (c *conn) CloseWrite() error {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}

// ConnContext is an http.Server.ConnContext hook that exposes the connection's
// recorder to handlers.
func ConnContext(ctx context.Context, c net.Conn) context.Context {
	if rc, ok := c.(*conn); ok {
		return context.WithValue(ctx, connKey{}, rc.rec)
	}
	return ctx
}

// Fields returns the headers of r as an ordered list. Values and membership
// come from r.Header; the recorded wire order and spelling are applied where
// available. Fields without a recorded position follow in sorted order.
func Fields(r *http.Request) model.HeaderList {
	var names []string
	if rec, ok := r.Context().Value(connKey{}).(*recorder); ok {
		names = rec.take(r.Method, r.RequestURI)
	}
	return assemble(names, r.Header)
}

func assemble(names []string, h http.Header) model.HeaderList {
	out := make(model.HeaderList, 0, len(h))
	used := make(map[string]int, len(h))

	for _, raw := range names {
		key := textproto.CanonicalMIMEHeaderKey(raw)
		vals := h[key]
		i := used[key]
		if i >= len(vals) {
			continue
		}
		used[key] = i + 1
		out = append(out, model.HeaderField{Name: raw, Value: vals[i]})
	}

	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		for _, v := range h[k][used[k]:] {
			out = append(out, model.HeaderField{Name: k, Value: v})
		}
	}
	return out
}
