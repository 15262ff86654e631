/*
Package logx provides a structured logging wrapper based on zerolog.

This file holds the HTTP request logging middleware. Every request gets a
request-scoped logger in its context. Remote addresses are truncated and
session tokens in the query string are never written.
*/
package logx

import (
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// tokenParam is the query parameter that carries the session token on
// WebSocket upgrades.
const tokenParam = "token"

// anonymizeIP keeps the /24 of an IPv4 address and the /64 of an IPv6
// address. Loopback stays as is so local runs remain readable.
func anonymizeIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}

	ip := net.ParseIP(addr)
	switch {
	case ip == nil:
		return "unknown_ip"
	case ip.IsLoopback():
		return "127.0.0.1"
	case ip.To4() != nil:
		return ip.Mask(net.CIDRMask(24, 32)).String()
	default:
		return ip.Mask(net.CIDRMask(64, 128)).String()
	}
}

// requestURI renders the path and query for logging. A request carrying a
// session token is logged by path only.
func requestURI(u *url.URL) string {
	if u.RawQuery == "" {
		return u.Path
	}
	if u.Query().Has(tokenParam) {
		return u.Path
	}
	return u.Path + "?" + u.RawQuery
}

// RequestLogger returns a middleware that logs one line per completed request
// and stores a request-scoped logger in the request context.
func RequestLogger() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := Logger().With().
				Str("component", "http").
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("remote_ip", anonymizeIP(r.RemoteAddr)).
				Str("request_method", r.Method).
				Str("request_uri", requestURI(r.URL)).
				Logger()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()

			next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context())))

			status := ww.Status()
			event := logger.Info()
			switch {
			case status >= http.StatusInternalServerError:
				event = logger.Error()
			case status >= http.StatusBadRequest:
				event = logger.Warn()
			}

			event.
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("latency", time.Since(started)).
				Msg("Request completed")
		})
	}
}
