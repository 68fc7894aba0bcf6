package client

import (
	"bufio"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"kcgate/internal/model"
)

// writeRequest writes an HTTP/1.1 request head and body. Host comes first,
// followed by req.Header in the given order and spelling. Body framing is
// recomputed: Transfer-Encoding fields are dropped and Content-Length is
// rewritten in place, or appended when the request carries a body but no
// Content-Length field.
func writeRequest(w *bufio.Writer, req *model.OutboundRequest, target *url.URL, rt *route) error {
	uri := target.RequestURI()
	if rt.absoluteForm {
		u := *target
		u.Fragment, u.RawFragment = "", ""
		uri = u.String()
	}
	if _, err := fmt.Fprintf(w, "%s %s HTTP/1.1\r\n", req.Method, uri); err != nil {
		return err
	}

	writeField(w, "Host", target.Host)
	if rt.absoluteForm && rt.proxyAuth != "" {
		writeField(w, "Proxy-Authorization", rt.proxyAuth)
	}

	sendLength := len(req.Body) > 0 || req.Method == http.MethodPost || req.Method == http.MethodPut
	length := strconv.Itoa(len(req.Body))
	framed := false

	for _, f := range req.Header {
		if !httpguts.ValidHeaderFieldName(f.Name) {
			return fmt.Errorf("invalid header field name %q", f.Name)
		}
		if !httpguts.ValidHeaderFieldValue(f.Value) {
			return fmt.Errorf("invalid header field value for %q", f.Name)
		}

		switch {
		case strings.EqualFold(f.Name, "Transfer-Encoding"):
			continue
		case strings.EqualFold(f.Name, "Content-Length"):
			if !sendLength || framed {
				continue
			}
			writeField(w, f.Name, length)
			framed = true
		default:
			writeField(w, f.Name, f.Value)
		}
	}
	if sendLength && !framed {
		writeField(w, "Content-Length", length)
	}

	if _, err := w.WriteString("\r\n"); err != nil {
		return err
	}
	_, err := w.Write(req.Body)
	return err
}

// writeField writes one header line. Write errors surface on Flush.
func writeField(w *bufio.Writer, name, value string) {
	_, _ = w.WriteString(name)
	_, _ = w.WriteString(": ")
	_, _ = w.WriteString(value)
	_, _ = w.WriteString("\r\n")
}
