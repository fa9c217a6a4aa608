// Package netx has helpers for turning transport-level client material into
// the values stored alongside sessions and confirmations.
package netx

import (
	"net"
	"strings"
	"unicode"
)

// NormalizeIP strips a port and IPv6 brackets from addr. Values that do not
// parse as an IP after stripping are returned trimmed but otherwise as is.
func NormalizeIP(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}

	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	addr = strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")

	if ip := net.ParseIP(addr); ip != nil {
		return ip.String()
	}
	return addr
}

// ClientAddress picks the address to record for a request: the transport
// peer when known, otherwise the first hop listed in X-Forwarded-For.
func ClientAddress(peer, forwardedFor string) string {
	if peer != "" {
		return peer
	}
	first, _, _ := strings.Cut(forwardedFor, ",")
	return strings.TrimSpace(first)
}

// CleanDeviceString drops control characters, trims and caps s at max runes.
func CleanDeviceString(s string, max int) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)

	if r := []rune(s); len(r) > max {
		s = string(r[:max])
	}
	return s
}
