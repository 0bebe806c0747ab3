package catalogkit

import (
	"net"
	"net/http"
	"strings"
)

// UnknownClientIP is returned by ClientIP when no address can be determined.
const UnknownClientIP = "unknown"

// ClientIP returns the address used to key per-client rate limits.
// It prefers the first X-Forwarded-For entry, then X-Real-IP, then the host
// part of RemoteAddr, and finally UnknownClientIP.
//
// SECURITY: the forwarding headers are client-controlled unless a trusted
// reverse proxy overwrites them. Deploy behind such a proxy.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := xff
		if idx := strings.IndexByte(xff, ','); idx != -1 {
			first = xff[:idx]
		}
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if r.RemoteAddr != "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr
		}
		if host != "" {
			return host
		}
	}
	return UnknownClientIP
}
