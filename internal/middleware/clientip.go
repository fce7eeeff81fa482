package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// clientIPKey is the context key for the client's network origin.
type clientIPKey struct{}

// SetClientIP stores the client IP in the context.
func SetClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// GetClientIP retrieves the client IP from context. Returns empty string
// if not present. Audit events use this to tag mutations with their
// network origin.
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// clientIPFromRequest resolves the originating client address, preferring
// proxy headers over the socket address.
func clientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First IP in the chain, trimmed per RFC 7239.
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not carry a port.
		return r.RemoteAddr
	}
	return host
}

// ClientIP stores the resolved client address in the request context so
// downstream audit writes can record it.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := SetClientIP(r.Context(), clientIPFromRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
