package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	// SessionExpiration is the default lifetime of a session token.
	SessionExpiration = 24 * time.Hour

	// TokenIssuer identifies the issuer of the token.
	TokenIssuer = "livechat"
)

var (
	// ErrInvalidToken is returned for tokens that fail signature or expiry checks.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrMissingIdentity is returned for valid tokens that name no participant.
	ErrMissingIdentity = errors.New("token carries no participant id")
)

// GenerateToken signs payload with HS256. The participant id doubles as the
// subject claim so standard tooling can read it.
func GenerateToken(payload *Payload, secretKey string, duration time.Duration) (string, error) {
	now := time.Now()

	payload.StandardClaims = jwt.StandardClaims{
		Subject:   payload.ID,
		ExpiresAt: now.Add(duration).Unix(),
		IssuedAt:  now.Unix(),
		Issuer:    TokenIssuer,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString([]byte(secretKey))
}

// ParseToken verifies tokenString and returns its payload. Only HMAC signed
// tokens that carry a participant id are accepted.
func ParseToken(tokenString string, secretKey string) (*Payload, error) {
	claims := &Payload{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ID == "" {
		return nil, ErrMissingIdentity
	}

	return claims, nil
}
