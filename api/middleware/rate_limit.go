package middleware

import (
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/time/rate"

	"github.com/angelmondragon/tradeledger/api/responses"
	pkgerrors "github.com/angelmondragon/tradeledger/pkg/errors"
	"github.com/angelmondragon/tradeledger/pkg/logger"
)

// RoleRateLimiter hands each actor role its own token bucket. Roles come
// from a fixed grant table, so buckets are never evicted.
type RoleRateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func NewRoleRateLimiter(perSecond float64, burst int) *RoleRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RoleRateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (rl *RoleRateLimiter) limiter(role string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[role]
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[role] = l
	}
	return l
}

// RateLimit rejects requests once the acting role has spent its bucket.
// It guards the full-store scans behind the audit routes.
func RateLimit(rl *RoleRateLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rl == nil || rl.limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := rl.limiter(RoleFromContext(r.Context()))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.burst))
			if !l.Allow() {
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(rl.limit)))
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many audit runs, try again shortly"))
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(l.Tokens())))
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(limit rate.Limit) int {
	if limit <= 0 {
		return 1
	}
	secs := int(1/float64(limit) + 0.999)
	if secs < 1 {
		return 1
	}
	return secs
}
