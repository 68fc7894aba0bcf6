package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/proxy"
)

// route is an established connection ready to carry the request.
type route struct {
	conn net.Conn
	// absoluteForm is set when the request goes to a plain HTTP proxy, which
	// expects the full URL in the request line and its own credentials.
	absoluteForm bool
	proxyAuth    string
}

func parseTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid target URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported target URL scheme %q in %q", u.Scheme, raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("target URL %q has no host", raw)
	}
	return u, nil
}

// parseProxy accepts a canonical proxy URL. A spec without a scheme is read as
// an HTTP proxy.
func parseProxy(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", redactErr(err, raw))
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("proxy URL %s has no host", u.Redacted())
	}
	return u, nil
}

// routeName labels how the request leaves the gateway.
func routeName(proxyURL *url.URL) string {
	if proxyURL == nil {
		return "direct"
	}
	if proxyURL.Scheme == "socks5h" {
		return "socks5"
	}
	return proxyURL.Scheme
}

// hostPort returns host:port for u, filling in the scheme's default port.
func hostPort(u *url.URL) string {
	if port := u.Port(); port != "" {
		return net.JoinHostPort(u.Hostname(), port)
	}
	switch u.Scheme {
	case "https":
		return net.JoinHostPort(u.Hostname(), "443")
	case "socks5", "socks5h":
		return net.JoinHostPort(u.Hostname(), "1080")
	default:
		return net.JoinHostPort(u.Hostname(), "80")
	}
}

func (d *Dispatcher) connect(ctx context.Context, target, proxyURL *url.URL) (*route, error) {
	addr := hostPort(target)

	var conn net.Conn
	var err error

	switch {
	case proxyURL == nil:
		conn, err = d.dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("connect to %s: %w", addr, err)
		}

	case proxyURL.Scheme == "socks5" || proxyURL.Scheme == "socks5h":
		conn, err = d.dialSOCKS(ctx, proxyURL, addr)
		if err != nil {
			return nil, err
		}

	default:
		conn, err = d.dialProxy(ctx, proxyURL)
		if err != nil {
			return nil, err
		}
		auth := basicAuth(proxyURL.User)
		if target.Scheme == "http" {
			return &route{conn: conn, absoluteForm: true, proxyAuth: auth}, nil
		}
		conn, err = tunnel(conn, addr, auth)
		if err != nil {
			return nil, fmt.Errorf("proxy %s: %w", proxyURL.Redacted(), err)
		}
	}

	if target.Scheme == "https" {
		conn, err = handshake(ctx, conn, target.Hostname())
		if err != nil {
			return nil, fmt.Errorf("tls handshake with %s: %w", addr, err)
		}
	}

	return &route{conn: conn}, nil
}

func (d *Dispatcher) dialSOCKS(ctx context.Context, proxyURL *url.URL, addr string) (net.Conn, error) {
	pd, err := proxy.FromURL(proxyURL, d.dialer)
	if err != nil {
		return nil, fmt.Errorf("proxy %s: %w", proxyURL.Redacted(), err)
	}
	cd, ok := pd.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("proxy %s: dialer does not support contexts", proxyURL.Redacted())
	}
	conn, err := cd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s via proxy %s: %w", addr, proxyURL.Redacted(), err)
	}
	return conn, nil
}

// dialProxy opens a connection to an HTTP or HTTPS proxy.
func (d *Dispatcher) dialProxy(ctx context.Context, proxyURL *url.URL) (net.Conn, error) {
	addr := hostPort(proxyURL)
	conn, err := d.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to proxy %s: %w", proxyURL.Redacted(), err)
	}
	if proxyURL.Scheme == "https" {
		conn, err = handshake(ctx, conn, proxyURL.Hostname())
		if err != nil {
			return nil, fmt.Errorf("tls handshake with proxy %s: %w", proxyURL.Redacted(), err)
		}
	}
	return conn, nil
}

// tunnel asks the proxy on conn for a CONNECT tunnel to addr.
func tunnel(conn net.Conn, addr, auth string) (net.Conn, error) {
	var b strings.Builder
	b.WriteString("CONNECT " + addr + " HTTP/1.1\r\n")
	b.WriteString("Host: " + addr + "\r\n")
	if auth != "" {
		b.WriteString("Proxy-Authorization: " + auth + "\r\n")
	}
	b.WriteString("\r\n")

	if _, err := conn.Write([]byte(b.String())); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send CONNECT: %w", err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, &http.Request{Method: http.MethodConnect})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read CONNECT response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = conn.Close()
		return nil, fmt.Errorf("CONNECT to %s refused: %s", addr, resp.Status)
	}

	if br.Buffered() > 0 {
		return &bufferedConn{Conn: conn, r: br}, nil
	}
	return conn, nil
}

func handshake(ctx context.Context, conn net.Conn, serverName string) (net.Conn, error) {
	tc := tls.Client(conn, &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: true, //nolint:gosec // targets may present self-signed certificates
		NextProtos:         []string{"http/1.1"},
	})
	if err := tc.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return tc, nil
}

func basicAuth(u *url.Userinfo) string {
	if u == nil {
		return ""
	}
	pass, _ := u.Password()
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(u.Username()+":"+pass))
}

// bufferedConn serves reads from r first; r may hold bytes read past the
// CONNECT response.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

// redactErr hides the scheme and userinfo of raw, which url.Parse echoes in
// its errors.
func redactErr(err error, raw string) error {
	at := strings.LastIndex(raw, "@")
	if at < 0 {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), raw[:at], "xxxxx"))
}
