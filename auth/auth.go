// Package auth resolves a presented credential to a stable user id.
// The surrounding backend issues HS256 tokens carrying a numeric user_id
// claim; this package only verifies and extracts, it never touches user
// records.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized covers every failure mode: missing token, bad signature,
// expired, or a token without a usable user_id claim. Callers close the
// connection with the unauthorized status and create no state.
var ErrUnauthorized = errors.New("auth: unauthorized")

// Authenticator resolves a credential string to a user id.
type Authenticator interface {
	Resolve(credential string) (int64, error)
}

// TokenAuthenticator verifies HS256 JWTs against a shared secret.
type TokenAuthenticator struct {
	secret []byte
}

func NewTokenAuthenticator(secret string) *TokenAuthenticator {
	return &TokenAuthenticator{secret: []byte(secret)}
}

func (a *TokenAuthenticator) Resolve(credential string) (int64, error) {
	if credential == "" {
		return 0, ErrUnauthorized
	}

	tok, err := jwt.Parse(credential, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !tok.Valid {
		return 0, ErrUnauthorized
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrUnauthorized
	}
	// json decodes numbers as float64; tokens minted by other stacks may
	// also carry the id as a string.
	switch id := claims["user_id"].(type) {
	case float64:
		return int64(id), nil
	case string:
		var n int64
		if _, err := fmt.Sscan(id, &n); err != nil {
			return 0, ErrUnauthorized
		}
		return n, nil
	default:
		return 0, ErrUnauthorized
	}
}
