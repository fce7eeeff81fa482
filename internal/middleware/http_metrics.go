package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// normalizePath converts paths with dynamic segments to route patterns to
// prevent cardinality explosion in metrics. This maps paths like
// /entries/123 to /entries/{id}.
func normalizePath(path string) string {
	// Static routes need no normalization.
	staticRoutes := map[string]bool{
		"/":                   true,
		"/entries":            true,
		"/supplements/verify": true,
		"/health":             true,
		"/ready":              true,
		"/metrics":            true,
	}

	if staticRoutes[path] {
		return path
	}

	// /entries/{id} and /entries/{id}/verify
	if strings.HasPrefix(path, "/entries/") {
		parts := strings.Split(path, "/")
		if len(parts) == 4 && parts[3] == "verify" {
			return "/entries/{id}/verify"
		}
		if len(parts) == 3 && parts[2] != "" {
			return "/entries/{id}"
		}
	}

	// /athletes/{id}/entries, /athletes/{id}/compliance,
	// /athletes/{id}/compliance/export
	if strings.HasPrefix(path, "/athletes/") {
		parts := strings.Split(path, "/")
		if len(parts) == 5 && parts[3] == "compliance" && parts[4] == "export" {
			return "/athletes/{id}/compliance/export"
		}
		if len(parts) == 4 && (parts[3] == "entries" || parts[3] == "compliance") {
			return "/athletes/{id}/" + parts[3]
		}
	}

	// Unknown patterns pass through unchanged so new routes keep metrics.
	return path
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code and response size.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

// WriteHeader captures the status code before writing it.
func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size and writes the data.
func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// HTTPMetrics records HTTP request metrics: duration, request/response
// sizes, and request counts. Health check endpoints (/health, /ready) are
// excluded to avoid cardinality issues.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()

			mrw := newMetricsResponseWriter(w)

			requestSize := int64(0)
			if contentLength := r.Header.Get("Content-Length"); contentLength != "" {
				if size, err := strconv.ParseInt(contentLength, 10, 64); err == nil {
					requestSize = size
				}
			}

			next.ServeHTTP(mrw, r)

			duration := time.Since(start).Seconds()
			normalizedPath := normalizePath(r.URL.Path)

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizedPath,
				strconv.Itoa(mrw.statusCode),
				duration,
				requestSize,
				mrw.size,
			)
		})
	}
}
