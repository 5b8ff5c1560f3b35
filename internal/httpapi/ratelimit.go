package httpapi

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/talentcomp/comprec/internal/auth"
	"github.com/talentcomp/comprec/internal/metrics"
)

// userLimiter enforces a per-user request budget. Limiters are created
// lazily and never evicted; the user directory is small and fixed.
type userLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newUserLimiter(perMinute int) *userLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	return &userLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}
}

func (l *userLimiter) allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// middleware rejects over-budget requests with 429. Runs after auth, so the
// key is the caller's email.
func (l *userLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if identity := auth.IdentityFromContext(r.Context()); identity != nil {
			key = identity.Email
		}
		if !l.allow(key) {
			metrics.RateLimitRejections.Inc()
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
