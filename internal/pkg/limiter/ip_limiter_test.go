package limiter

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestMiddlewareLimitsPerIP(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(0.001), 2)
	defer l.Stop()

	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(addr string) int {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, send("192.0.2.1:1000"))
	assert.Equal(t, http.StatusNoContent, send("192.0.2.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, send("192.0.2.1:1002"))

	assert.Equal(t, http.StatusNoContent, send("192.0.2.2:1000"))
}

func TestSweepDropsFullBuckets(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(1000), 1)
	defer l.Stop()

	l.GetLimiter("192.0.2.1")
	l.GetLimiter("192.0.2.2").Allow()

	removed := l.sweep(time.Now().Add(time.Second))
	assert.Equal(t, 2, removed)
	assert.Empty(t, l.limits)
}
