package client

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// errUnsupportedCoding is returned when a response uses a content coding the
// gateway cannot undo. The caller relays the body as received.
var errUnsupportedCoding = errors.New("unsupported content coding")

// contentCodings lists the codings of h's Content-Encoding in the order they
// were applied.
func contentCodings(h http.Header) []string {
	var codings []string
	for _, v := range h.Values("Content-Encoding") {
		for _, c := range strings.Split(v, ",") {
			if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
				codings = append(codings, c)
			}
		}
	}
	return codings
}

// decodeBody undoes codings, last applied first. The decoded size is bounded
// by limit when limit is positive.
func decodeBody(body []byte, codings []string, limit int64) ([]byte, error) {
	if len(body) == 0 {
		return body, nil
	}
	for _, c := range codings {
		if !supportedCoding(c) {
			return body, fmt.Errorf("%w: %s", errUnsupportedCoding, c)
		}
	}

	out := body
	for i := len(codings) - 1; i >= 0; i-- {
		decoded, err := decodeOne(out, codings[i], limit)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", codings[i], err)
		}
		out = decoded
	}
	return out, nil
}

func supportedCoding(c string) bool {
	switch c {
	case "identity", "gzip", "x-gzip", "deflate", "br", "zstd":
		return true
	}
	return false
}

func decodeOne(b []byte, coding string, limit int64) ([]byte, error) {
	var r io.Reader
	switch coding {
	case "identity":
		return b, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		defer func() { _ = zr.Close() }()
		r = zr
	case "deflate":
		// Servers send either zlib-wrapped or raw deflate under this name.
		if zr, err := zlib.NewReader(bytes.NewReader(b)); err == nil {
			defer func() { _ = zr.Close() }()
			r = zr
		} else {
			fr := flate.NewReader(bytes.NewReader(b))
			defer func() { _ = fr.Close() }()
			r = fr
		}
	case "br":
		r = brotli.NewReader(bytes.NewReader(b))
	case "zstd":
		zr, err := zstd.NewReader(bytes.NewReader(b), zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	default:
		return nil, errUnsupportedCoding
	}
	return readLimited(r, limit)
}
