// Package utils provides helpers for issuing access tokens.
package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessToken is a signed HS256 JWT with its expiry.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// NewAccessToken signs an access token carrying the subject, tenant and role
// claims that JWTAuth expects. Tokens are normally issued by the identity
// provider in front of this service; this helper serves local tooling and
// tests.
func NewAccessToken(secret, userID, tenantID, role string, ttl time.Duration) (AccessToken, error) {
	if secret == "" || userID == "" || tenantID == "" {
		return AccessToken{}, errors.New("secret, user id and tenant id are required")
	}
	if ttl <= 0 {
		return AccessToken{}, errors.New("ttl must be positive")
	}
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":       userID,
		"tenant_id": tenantID,
		"role":      role,
		"typ":       "access",
		"exp":       exp.Unix(),
		"iat":       now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}
