package middleware

import (
	"net/http"

	"habit-streak-backend/internal/ratelimit"

	"github.com/rs/zerolog/log"
)

// RateLimit rejects requests over the authenticated user's HTTP budget.
// It must run after AuthMiddleware.
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := GetUserID(r.Context())
			if !limiter.Allow(ratelimit.Key(userID, ratelimit.ActionHTTP)) {
				log.Debug().Str("user_id", userID).Str("path", r.URL.Path).Msg("Request rate limited")
				w.Header().Set("Retry-After", "1")
				respondError(w, "Too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
