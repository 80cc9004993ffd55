package tokens

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims mirrors the payload of the backend's access tokens.
type AccessClaims struct {
	UserID any `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// ClaimsFromToken decodes the token payload without checking the signature.
// The client never holds the signing key; the result is only fit for
// logging and display, never for trust decisions.
func ClaimsFromToken(tokenStr string) (*AccessClaims, error) {
	var claims AccessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

// Subject returns the user id carried by an access token, or "" when the
// token can't be decoded.
func Subject(tokenStr string) string {
	claims, err := ClaimsFromToken(tokenStr)
	if err != nil {
		return ""
	}
	switch v := claims.UserID.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return claims.Subject
}

func ExpiresAt(tokenStr string) (time.Time, bool) {
	claims, err := ClaimsFromToken(tokenStr)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
