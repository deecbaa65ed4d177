// Package clientip extracts the caller's IP address from proxied HTTP
// requests. The BIN lookup throttle keys its fixed-window counters on
// this value, so header order matters: trusted proxy headers first,
// socket address as the fallback.
package clientip

import (
	"net"
	"net/http"
	"strings"
)

// proxyHeaders in trust order. CDN headers carry the real client address
// when present; X-Forwarded-For may hold a comma-separated chain.
var proxyHeaders = []string{
	"CF-Connecting-IP",
	"X-Forwarded-For",
	"X-Real-IP",
}

// FromRequest returns the client IP for r, normalized through
// net.ParseIP. Falls back to RemoteAddr when no proxy header yields a
// valid address.
func FromRequest(r *http.Request) string {
	for _, header := range proxyHeaders {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}
		for candidate := range strings.SplitSeq(value, ",") {
			if ip := normalize(candidate); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return normalize(r.RemoteAddr)
	}
	return normalize(host)
}

func normalize(raw string) string {
	ip := net.ParseIP(strings.TrimSpace(raw))
	if ip == nil {
		return ""
	}
	return ip.String()
}
