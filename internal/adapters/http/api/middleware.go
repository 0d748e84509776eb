package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okian/conjunct/pkg/metrics"
)

// MetricsMiddleware records request counts and latency per chi route
// pattern, so /events/{id} is one series rather than one per event.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		code := strconv.Itoa(status)
		metrics.RecordHTTPRequest(route, r.Method, code)
		metrics.RecordHTTPRequestDuration(route, r.Method, code, float64(time.Since(start).Milliseconds()))
		if kind := errorKind(status); kind != "" {
			metrics.RecordErrorByComponent("http", kind)
		}
	})
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// errorKind buckets failed responses; it is empty for successes.
func errorKind(status int) string {
	switch {
	case status >= http.StatusInternalServerError:
		if status == http.StatusServiceUnavailable {
			return "unavailable"
		}
		return "server_error"
	case status == http.StatusNotFound:
		return "not_found"
	case status == http.StatusTooManyRequests:
		return "rate_limit"
	case status >= http.StatusBadRequest:
		return "client_error"
	}
	return ""
}
