// Package auth issues and checks session tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for missing, malformed, expired or foreign tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims carried by a session token. Subject is the account id.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 tokens with one secret. Customer and admin sessions use
// separate issuers so a customer token can never pass the admin check.
type Issuer struct {
	secret     []byte
	ttl        time.Duration
	cookieName string
	nowFunc    func() time.Time
}

// NewIssuer returns an Issuer whose tokens live for ttl and travel in cookieName.
func NewIssuer(secret string, ttl time.Duration, cookieName string) *Issuer {
	return &Issuer{
		secret:     []byte(secret),
		ttl:        ttl,
		cookieName: cookieName,
		nowFunc:    time.Now,
	}
}

// CookieName is the cookie the token is set in.
func (i *Issuer) CookieName() string { return i.cookieName }

// TTL is how long issued tokens stay valid.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue signs a token for the account.
func (i *Issuer) Issue(accountID, email, role string) (string, error) {
	now := i.nowFunc()
	claims := Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses tokenString and returns its claims.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.nowFunc),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
