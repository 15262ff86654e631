package jwt

import (
	"context"
	"net/http"
	"strings"

	"livechat/internal/pkg/errs"
	"livechat/internal/pkg/logx"
	"livechat/internal/pkg/resp"
)

type contextKey string

const (
	// ContextAuthPayloadKey is the key used to store the parsed Payload in the request Context.
	ContextAuthPayloadKey contextKey = "auth_payload"

	// QueryTokenKey is the query parameter consulted when no Authorization header is present.
	// Browsers cannot set headers on WebSocket handshakes.
	QueryTokenKey = "token"
)

// tokenFromRequest extracts a bearer token from the Authorization header or the token query parameter.
func tokenFromRequest(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return ""
		}
		return parts[1]
	}

	return r.URL.Query().Get(QueryTokenKey)
}

// IdentityExtractorMiddleware attempts to extract and validate a JWT from the request.
// It injects the Payload into the Context upon success. It does NOT interrupt the request
// on failure or missing token, treating the user as anonymous instead.
func IdentityExtractorMiddleware(secretKey string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := tokenFromRequest(r)
			if tokenString == "" {
				next.ServeHTTP(w, r)
				return
			}

			payload, err := ParseToken(tokenString, secretKey)
			if err != nil {
				logx.Warn("Invalid or expired JWT provided, treating as anonymous", "error", err.Error())
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPayload(r.Context(), payload)))
		})
	}
}

// RequireIdentity rejects requests that carry no session identity with ErrUnauthorized.
// It must run after IdentityExtractorMiddleware.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetPayloadFromContext(r) == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithPayload returns a copy of ctx carrying payload.
func WithPayload(ctx context.Context, payload *Payload) context.Context {
	return context.WithValue(ctx, ContextAuthPayloadKey, payload)
}

// GetPayloadFromContext safely extracts the authenticated Payload from the request Context.
// A nil return means the caller is anonymous.
func GetPayloadFromContext(r *http.Request) *Payload {
	payload, ok := r.Context().Value(ContextAuthPayloadKey).(*Payload)

	if !ok {
		return nil
	}

	return payload
}
