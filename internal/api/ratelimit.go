package api

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/amityvox/notifyhub/internal/ratelimit"
)

// rateLimitMiddleware enforces the HTTP-level global rate limit from
// config.HTTP.RateLimitWindow/RateLimitMax, keyed by client IP. notifyhub's
// surface has no authenticated-vs-anonymous split (spec §6's controllers are
// all service-to-service or demo endpoints), so unlike the teacher's tiered
// per-route limits, a single global window is sufficient here.
func (s *Server) rateLimitMiddleware() func(http.Handler) http.Handler {
	rlWindow, werr := time.ParseDuration(s.Config.HTTP.RateLimitWindow)
	if werr != nil || rlWindow <= 0 {
		rlWindow = time.Minute
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.Limiter == nil || s.Config.HTTP.RateLimitMax <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			key := "ratelimit:" + clientIP(r)
			result, err := s.Limiter.Check(r.Context(), key, s.Config.HTTP.RateLimitMax, rlWindow)
			if err != nil {
				s.Logger.Debug("rate limit check failed", slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, result, rlWindow)
			if !result.Allowed {
				writeRateLimitResponse(w, rlWindow)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, result ratelimit.Result, window time.Duration) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(window).Unix(), 10))
}

func writeRateLimitResponse(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	WriteError(w, http.StatusTooManyRequests, "rate_limited", "You are being rate limited. Please try again later.")
}

// clientIP extracts the client IP from the request. Chi's RealIP middleware
// already sets r.RemoteAddr from trusted proxy headers, so we just strip the
// port from RemoteAddr.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
