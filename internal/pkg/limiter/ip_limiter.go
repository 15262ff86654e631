/*
Package limiter provides request rate limiting based on client IP addresses.

It keeps one token bucket (rate.Limiter) per client IP for the message send
endpoints and runs a cleanup goroutine that drops idle buckets.
*/
package limiter

import (
	"net"
	"net/http"
	"sync"
	"time"

	"livechat/internal/pkg/errs"
	"livechat/internal/pkg/logx"
	"livechat/internal/pkg/resp"

	"golang.org/x/time/rate"
)

// cleanupInterval is how often idle limiters are swept.
const cleanupInterval = 3 * time.Minute

// IPRateLimiter implements a rate limiter keyed by client IP address.
type IPRateLimiter struct {
	// mu protects the limits map.
	mu sync.RWMutex

	// limits maps a client IP address to its token bucket.
	limits map[string]*rate.Limiter

	// r is the number of events allowed per second.
	r rate.Limit

	// b is the burst size of each bucket.
	b int

	stop     chan struct{}
	stopOnce sync.Once
}

// NewIPRateLimiter creates an IPRateLimiter with rate r and burst b and starts its cleanup goroutine.
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	i := &IPRateLimiter{
		limits: make(map[string]*rate.Limiter),
		r:      r,
		b:      b,
		stop:   make(chan struct{}),
	}

	go i.cleanUpVisitors()

	return i
}

// GetLimiter returns the limiter for ip, creating it on first use.
// Creation uses double-checked locking.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.RLock()
	limiter, exists := i.limits[ip]
	i.mu.RUnlock()

	if !exists {
		i.mu.Lock()
		limiter, exists = i.limits[ip]
		if !exists {
			limiter = rate.NewLimiter(i.r, i.b)
			i.limits[ip] = limiter
		}
		i.mu.Unlock()
	}

	return limiter
}

// Stop terminates the cleanup goroutine.
func (i *IPRateLimiter) Stop() {
	i.stopOnce.Do(func() { close(i.stop) })
}

// sweep removes limiters whose bucket is full, i.e. clients idle long enough
// to have regained their whole burst. It returns the number removed.
func (i *IPRateLimiter) sweep(now time.Time) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	count := 0
	for ip, limiter := range i.limits {
		if limiter.TokensAt(now) >= float64(limiter.Burst()) {
			delete(i.limits, ip)
			count++
		}
	}
	return count
}

func (i *IPRateLimiter) cleanUpVisitors() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-i.stop:
			return
		case now := <-ticker.C:
			removed := i.sweep(now)

			i.mu.RLock()
			remaining := len(i.limits)
			i.mu.RUnlock()

			logx.Debug("Rate limiter cleanup finished", "removed", removed, "remaining", remaining)
		}
	}
}

// clientIP returns the host part of the request's remote address.
// chi's RealIP middleware has already replaced it with the forwarded address.
func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}

	if ip == "" {
		ip = "unknown_ip"
	}
	return ip
}

// Middleware rejects requests over the limit with ErrRateLimitExceeded (HTTP 429).
func (i *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !i.GetLimiter(clientIP(r)).Allow() {
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		next.ServeHTTP(w, r)
	})
}
