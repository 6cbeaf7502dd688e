package middleware

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var staticRoutes = map[string]bool{
	"/":               true,
	"/v1/rank":        true,
	"/v1/rank/stream": true,
	"/v1/graph":       true,
	"/v1/datasets":    true,
	"/health":         true,
	"/ready":          true,
	"/metrics":        true,
}

// datasetActions are the known sub-resources of /v1/datasets/{name}.
var datasetActions = map[string]bool{
	"rank":    true,
	"summary": true,
}

// normalizePath maps request paths to route patterns so dataset names do
// not become label values. Unknown paths collapse to "other".
func normalizePath(path string) string {
	if staticRoutes[path] {
		return path
	}

	if rest, ok := strings.CutPrefix(path, "/v1/datasets/"); ok {
		parts := strings.Split(rest, "/")
		switch {
		case len(parts) == 1 && parts[0] != "":
			return "/v1/datasets/{name}"
		case len(parts) == 2 && parts[0] != "" && datasetActions[parts[1]]:
			return "/v1/datasets/{name}/" + parts[1]
		}
	}

	if strings.HasPrefix(path, "/debug/pprof/") {
		return "/debug/pprof/*"
	}
	return "other"
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
	mrw.wroteHeader = true
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

func (mrw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return mrw.ResponseWriter
}

func (mrw *metricsResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return hijack(mrw.ResponseWriter, func() {
		mrw.statusCode = http.StatusSwitchingProtocols
		mrw.wroteHeader = true
	})
}

// HTTPMetrics records request duration, sizes, and counts. /health and
// /ready are excluded.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			mrw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			requestSize := r.ContentLength
			if requestSize < 0 {
				requestSize = 0
			}

			next.ServeHTTP(mrw, r)

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				strconv.Itoa(mrw.statusCode),
				time.Since(start).Seconds(),
				requestSize,
				mrw.size,
			)
		})
	}
}
