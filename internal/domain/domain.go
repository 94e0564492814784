// Package domain turns tab URLs into lookup keys and filters out hosts that
// must never be sent to the remote service.
package domain

import (
	"net/netip"
	"net/url"
	"strings"
)

var skipHosts = map[string]struct{}{
	"localhost": {},
	"127.0.0.1": {},
	"0.0.0.0":   {},
	"10.0.2.2":  {},
	"[::1]":     {},
	"::1":       {},
}

// IsLocal reports whether hostname is a loopback, private-range or
// link-local host. Bracketed IPv6 literals are accepted.
func IsLocal(hostname string) bool {
	h := strings.ToLower(strings.TrimSuffix(hostname, "."))
	if _, ok := skipHosts[h]; ok {
		return true
	}
	if strings.HasSuffix(h, ".localhost") {
		return true
	}
	bare := strings.TrimSuffix(strings.TrimPrefix(h, "["), "]")
	if i := strings.IndexByte(bare, '%'); i >= 0 {
		bare = bare[:i] // zone id
	}
	addr, err := netip.ParseAddr(bare)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsUnspecified()
}

// Extract returns the hostname of an http(s) URL, or "" when the URL is not
// a public web page.
func Extract(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" || IsLocal(host) {
		return ""
	}
	return host
}
