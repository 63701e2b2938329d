package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	domainerrors "github.com/listenupapp/coverfinder-server/internal/errors"
	"github.com/listenupapp/coverfinder-server/internal/metrics"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const contextKeyClientIP contextKey = "client_ip"

// withClientIP stores the caller's address in the request context.
// Runs after middleware.RealIP so proxies are already accounted for.
func withClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := context.WithValue(r.Context(), contextKeyClientIP, ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP extracts the caller's address from request context.
// Returns empty string when unknown.
func clientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(contextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// onPrefix applies mw only to requests under prefix.
func onPrefix(prefix string, mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limited := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, prefix) {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// observe records request metrics by route pattern and logs each request.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		elapsed := time.Since(start)
		metrics.RecordAPIRequest(r.Method, route, status, elapsed)

		level := s.logger.Debug
		if status >= http.StatusInternalServerError {
			level = s.logger.Warn
		}
		level("http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration", elapsed,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// routePattern keeps metric cardinality bounded by labelling with the matched pattern.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// rateLimited answers requests rejected by the general per-IP limit.
func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	metrics.APIRateLimitHits.WithLabelValues(routePattern(r)).Inc()
	s.logger.Warn("rate limit exceeded", "ip", clientIP(r.Context()), "path", r.URL.Path)

	writeError(w, fromDomainError(domainerrors.RateLimited("too many requests, please try again later")))
}

// allowTrack applies the keyed tracking limit. Key parts are joined to the client IP.
func (s *Server) allowTrack(ctx context.Context, route string, parts ...string) error {
	key := strings.Join(append([]string{clientIP(ctx)}, parts...), "|")
	if s.trackLimiter.Allow(key) {
		return nil
	}
	metrics.APIRateLimitHits.WithLabelValues(route).Inc()
	return fromDomainError(domainerrors.RateLimited("too many tracking events, please slow down"))
}

func writeError(w http.ResponseWriter, apiErr *APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.GetStatus())
	_ = json.NewEncoder(w).Encode(apiErr)
}
