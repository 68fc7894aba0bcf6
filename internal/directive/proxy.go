package directive

import (
	"errors"
	"strings"
)

// ErrInvalidProxy is returned for a proxy spec that is neither the compact
// ip:port:user:pass form nor a URL with embedded credentials.
var ErrInvalidProxy = errors.New("invalid proxy format")

// FormatProxy normalizes a proxy spec into a canonical proxy URL.
//
// The compact form ip:port:user:pass (optionally prefixed with http:// or
// https://) becomes http://user:pass@ip:port with both credentials
// percent-encoded. A spec containing '@' is taken as already formatted and
// returned as is. Specs with any other scheme (socks5://, socks5h://) skip
// the compact rule entirely, since their userinfo colons would otherwise
// split into four parts.
func FormatProxy(raw string) (string, error) {
	if scheme, _, ok := strings.Cut(raw, "://"); ok && !isHTTPScheme(scheme) && strings.Contains(raw, "@") {
		return raw, nil
	}

	rest := raw
	for _, scheme := range []string{"http://", "https://"} {
		if len(rest) >= len(scheme) && strings.EqualFold(rest[:len(scheme)], scheme) {
			rest = rest[len(scheme):]
			break
		}
	}

	if parts := strings.Split(rest, ":"); len(parts) == 4 {
		ip, port, user, pass := parts[0], parts[1], parts[2], parts[3]
		return "http://" + escapeCredential(user) + ":" + escapeCredential(pass) + "@" + ip + ":" + port, nil
	}

	if strings.Contains(raw, "@") {
		return raw, nil
	}

	return "", ErrInvalidProxy
}

func isHTTPScheme(s string) bool {
	return strings.EqualFold(s, "http") || strings.EqualFold(s, "https")
}

const upperhex = "0123456789ABCDEF"

// escapeCredential percent-encodes every byte outside the RFC 3986 unreserved
// set, so the result is safe inside userinfo and url.Parse decodes it back.
// url.UserPassword(...).String() is not used: it leaves sub-delimiters such as
// '$', '&' and '=' unescaped.
func escapeCredential(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}
