package utils // package utils provides helper functions for token creation and hashing

import (
	"time" // time utilities for generating expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// AdminToken represents a signed HS256 JWT for the administrative API
// along with its expiry.  Admin tokens guard the cache-invalidation
// endpoints; there is no refresh flow, operators simply log in again.
type AdminToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// NewAdminToken builds and signs an HS256 JWT carrying the admin subject
// and role.  Claims: subject (sub), role, expiration (exp), issued at (iat).
func NewAdminToken(secret, subject string, ttlMin int) (AdminToken, error) {
	exp := time.Now().UTC().Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": "ADMIN",
		"exp":  exp.Unix(),
		"iat":  time.Now().UTC().Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AdminToken{}, err
	}
	return AdminToken{Token: signed, Exp: exp}, nil
}
