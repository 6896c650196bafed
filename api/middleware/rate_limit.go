package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/pullstream-backend/api/responses"
	pkgerrors "github.com/angelmondragon/pullstream-backend/pkg/errors"
	"github.com/angelmondragon/pullstream-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/pullstream-backend/pkg/redis"
)

// RateLimitPolicy caps how many requests one caller may make per window.
type RateLimitPolicy struct {
	surface string
	window  time.Duration
	limit   int
}

// NewRateLimitPolicy builds a policy for the named traffic surface.
func NewRateLimitPolicy(surface string, window time.Duration, limit int) RateLimitPolicy {
	return RateLimitPolicy{
		surface: strings.ToLower(strings.TrimSpace(surface)),
		window:  window,
		limit:   limit,
	}
}

func (p RateLimitPolicy) enabled() bool {
	return p.window > 0 && p.limit > 0
}

func (p RateLimitPolicy) name() string {
	if p.surface == "" {
		return "api"
	}
	return p.surface
}

// RateLimit counts mutating requests per authenticated caller, falling back
// to the client address. Safe methods pass through untouched.
func RateLimit(policy RateLimitPolicy, store pkgredis.RateLimitStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			caller := IdentityFromContext(ctx)
			if caller == "" {
				caller = "ip:" + clientIP(r)
			}
			key := store.RateLimitKey(policy.name(), strings.ToLower(caller))

			count, err := store.IncrWithTTL(ctx, key, policy.window)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
				return
			}
			if count > int64(policy.limit) {
				respondRateLimited(ctx, logg, w, policy, count)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func respondRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy RateLimitPolicy, count int64) {
	if logg != nil {
		logCtx := logg.WithFields(ctx, map[string]any{
			"policy":         policy.name(),
			"attempts":       count,
			"limit":          policy.limit,
			"window_seconds": int(policy.window.Seconds()),
		})
		logg.Warn(logCtx, "rate_limit.blocked")
	}
	w.Header().Set("Retry-After", retryAfterSeconds(policy.window))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
}

func retryAfterSeconds(window time.Duration) string {
	secs := int(window.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
