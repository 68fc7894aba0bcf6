package directive

import "strings"

// ResolveTarget makes a root-relative target absolute against the inbound host.
// The scheme is https only when protocol is exactly "2". Absolute targets are
// returned unchanged; nothing is validated here.
func ResolveTarget(target, host, protocol string) string {
	if !strings.HasPrefix(target, "/") {
		return target
	}
	scheme := "http"
	if protocol == "2" {
		scheme = "https"
	}
	return scheme + "://" + host + target
}
