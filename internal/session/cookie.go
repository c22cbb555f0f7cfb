package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errBadCookie = errors.New("session: invalid cookie")

// signID wraps a session id in an HS256 token so the browser cannot forge or
// swap ids. The token carries no session data.
func signID(secret []byte, id string, now time.Time, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:        id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign session cookie: %w", err)
	}
	return s, nil
}

// verifyID returns the session id carried by a cookie value.
func verifyID(secret []byte, value string, now time.Time) (string, error) {
	var claims jwt.RegisteredClaims
	tok, err := jwt.ParseWithClaims(value, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errBadCookie, err)
	}
	if !tok.Valid || claims.ID == "" {
		return "", errBadCookie
	}
	return claims.ID, nil
}
