// Package auth provides session tokens, password hashing, and the HTTP
// middleware that identifies callers.
//
// AUTHENTICATION FLOW:
//  1. The client posts username + password to /auth/login (or registers).
//  2. UserService checks them against the users document.
//  3. The server signs a JWT whose subject is the username and sets it as
//     the HttpOnly "token" cookie.
//  4. RequireAuth validates the cookie on later requests and puts the
//     username in the request context. RequireAdmin then looks the user up
//     to check the role.
//
// The token carries only who the caller is, never what they may do: roles
// live in the users document, so demoting or deleting a user takes effect
// on their next request even though the token is still valid.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "minelux"

	// DefaultTokenTTL is how long a login lasts.
	DefaultTokenTTL = 24 * time.Hour

	minSecretLength = 16
)

// TokenService signs and validates session tokens with an HMAC secret.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService. Generate a secret with
// `openssl rand -hex 32`; config does this when JWT_SECRET is unset.
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", minSecretLength)
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// claims is the token payload. The username is the standard "sub" claim.
type claims struct {
	jwt.RegisteredClaims
}

// Generate signs a token for username that expires after DefaultTokenTTL.
func (s *TokenService) Generate(username string) (string, error) {
	return s.GenerateWithDuration(username, DefaultTokenTTL)
}

// GenerateWithDuration signs a token with a custom lifetime. Tests use a
// negative one to get an expired token.
func (s *TokenService) GenerateWithDuration(username string, d time.Duration) (string, error) {
	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate verifies tokenStr and returns the username it was issued to.
//
// A token is rejected unless it is HS256-signed with our secret, issued by
// "minelux", carries an expiry that has not passed, and names a subject.
// Pinning the algorithm stops "alg":"none" and key-confusion tricks.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", errors.New("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", errors.New("auth: invalid token claims")
	}
	if c.Subject == "" {
		return "", errors.New("auth: token has no subject")
	}
	return c.Subject, nil
}
