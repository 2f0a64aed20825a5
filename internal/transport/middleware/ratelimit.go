package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	appErrors "github.com/frahmantamala/backoffice/internal"
	"github.com/frahmantamala/backoffice/internal/transport"
)

// RateLimiter keeps one token bucket per client IP. A bucket is dropped once
// the configured window has passed since it was created, or when maxClients
// newer buckets push it out.
type RateLimiter struct {
	limit rate.Limit
	burst int
	base  *transport.BaseHandler

	mu      sync.Mutex
	buckets *expirable.LRU[string, *rate.Limiter]
}

func NewRateLimiter(perSecond float64, burst int, maxClients int, idle time.Duration, base *transport.BaseHandler) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		base:    base,
		buckets: expirable.NewLRU[string, *rate.Limiter](maxClients, nil, idle),
	}
}

func (rl *RateLimiter) limiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if l, ok := rl.buckets.Get(ip); ok {
		return l
	}
	l := rate.NewLimiter(rl.limit, rl.burst)
	rl.buckets.Add(ip, l)
	return l
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := rl.limiter(clientIP(r))
		if !l.Allow() {
			res := l.Reserve()
			delay := res.Delay()
			res.Cancel()
			w.Header().Set("Retry-After", strconv.Itoa(int(delay.Seconds())+1))
			rl.base.WriteAppError(w, appErrors.NewTooManyRequestsError("too many requests"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
