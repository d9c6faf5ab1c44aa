package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/phrazzld/docintel-api/internal/api/shared"
	"github.com/phrazzld/docintel-api/internal/ratelimit"
)

// Limiter decides whether a request may proceed.
type Limiter interface {
	Allow(ctx context.Context, tier, identifier string) ratelimit.Result
}

// RateLimit limits requests against tier. Callers are identified by user ID
// when authenticated and by client IP otherwise, so it should run after
// Authenticate on protected routes.
func RateLimit(limiter Limiter, tier string) func(http.Handler) http.Handler {
	return RateLimitFunc(limiter, func(*http.Request) string { return tier })
}

// RateLimitSearch uses the search tier for requests carrying a search query
// and the default tier otherwise.
func RateLimitSearch(limiter Limiter) func(http.Handler) http.Handler {
	return RateLimitFunc(limiter, func(r *http.Request) string {
		if r.URL.Query().Get("search") != "" {
			return ratelimit.TierSearch
		}
		return ratelimit.TierDefault
	})
}

// RateLimitFunc limits requests against the tier chosen by tierFor.
func RateLimitFunc(limiter Limiter, tierFor func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := limiter.Allow(r.Context(), tierFor(r), clientIdentifier(r))

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed {
				retry := int(res.RetryAfter.Round(time.Second) / time.Second)
				if retry < 1 {
					retry = 1
				}
				h.Set("Retry-After", strconv.Itoa(retry))
				shared.RespondWithErrorAndLog(w, r, http.StatusTooManyRequests,
					fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", retry), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIdentifier(r *http.Request) string {
	if p, ok := shared.GetPrincipal(r.Context()); ok {
		return "user:" + p.UserID.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
