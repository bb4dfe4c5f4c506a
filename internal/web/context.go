package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/poflow/internal/logging"
)

// requestContext attaches the client IP to the request context so that
// domain log lines can be traced back to a caller.
func requestContext(r *http.Request) context.Context {
	return logging.ContextWith(r.Context(), "ip", clientIP(r))
}

// clientIP returns the address resolved by TrustedRealIP without a port.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
