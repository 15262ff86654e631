package handler

import (
	"net/http"

	"livechat/internal/app/user"
	"livechat/internal/pkg/auth/jwt"
)

// sessionUser returns the identity carried by the request token, or the zero
// User for anonymous requests.
func sessionUser(r *http.Request) user.User {
	p := jwt.GetPayloadFromContext(r)
	if p == nil {
		return user.User{}
	}

	return user.User{
		ID:       p.ID,
		Nickname: p.Nickname,
		Avatar:   p.Avatar,
		UserType: p.UserType,
	}
}
