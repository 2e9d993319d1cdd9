package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// TokenHeader carries the per-process shell token on control requests.
const TokenHeader = "X-Shell-Token"

// RequestObserver records completed requests, e.g. into metrics.
type RequestObserver func(method string, status int, d time.Duration)

func requestLogger(observe RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)
			level := slog.LevelInfo
			if strings.HasPrefix(r.URL.Path, "/api/v1/view/") || r.URL.Path == "/metrics" {
				// Geometry and scrapes are chatty.
				level = slog.LevelDebug
			}
			slog.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", elapsed.Milliseconds(),
				"remote", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
			)
			if observe != nil {
				observe(r.Method, ww.Status(), elapsed)
			}
		})
	}
}

// requireToken rejects /api requests without the shell token. Event streams
// may pass it as ?token= because EventSource cannot set headers.
func requireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || !strings.HasPrefix(r.URL.Path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}
			got := r.Header.Get(TokenHeader)
			if got == "" && r.URL.Path == eventsPath {
				got = r.URL.Query().Get("token")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				slog.Warn("control request rejected", "path", r.URL.Path, "remote", r.RemoteAddr)
				http.Error(w, "missing or invalid shell token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// unlimited reports whether path skips the rate limiter. Event streams are
// long-lived, and view geometry and pointer hit tests follow the shell's
// frame rate.
func unlimited(path string) bool {
	return !strings.HasPrefix(path, "/api/") ||
		path == eventsPath ||
		path == pointerPath ||
		strings.HasPrefix(path, viewPathPrefix)
}

// rateLimit sheds /api requests beyond the configured rate.
func rateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || unlimited(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
