package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the claims of a session token.
// It replaces the browser's locally stored identity: the participant id,
// display name and avatar reference are opaque values issued elsewhere and
// only read by this service.
type Payload struct {
	// StandardClaims embeds the standard fields such as Exp, Iat and Iss.
	jwt.StandardClaims `json:"standard_claims"`

	// ID is the participant identifier, either a registered user id or a visitor id.
	ID string `json:"id"`

	// Nickname is the display name shown on outgoing messages.
	Nickname string `json:"nickname"`

	// Avatar is the avatar reference attached to outgoing messages.
	Avatar string `json:"avatar,omitempty"`

	// UserType is "registered" or "visitor".
	UserType string `json:"user_type"`
}
