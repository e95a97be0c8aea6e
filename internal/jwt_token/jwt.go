package jwttoken

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "portal/pkg/domain-errors"
)

// Claims are the access token claims issued by the accounts API
// (djangorestframework-simplejwt layout).
type Claims struct {
	UserID    int64  `json:"user_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Inspect decodes token claims WITHOUT verifying the signature. The client
// never holds the signing key; results are for display, audit subjects and
// defaulting identifiers only. Authentication decisions go through the
// remote verify endpoint.
func Inspect(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "token is empty")
	}

	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "token is not a readable JWT")
	}
	return claims, nil
}

// ExpiresAt returns the exp claim, or the zero time when absent.
func (c *Claims) ExpiresAt() time.Time {
	if c.RegisteredClaims.ExpiresAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.ExpiresAt.Time
}

// ExpiredAt reports whether the token is past its exp claim at now.
// Tokens without exp never expire by this check.
func (c *Claims) ExpiredAt(now time.Time) bool {
	exp := c.ExpiresAt()
	return !exp.IsZero() && !now.Before(exp)
}

// ErrNoUserID is returned by UserIDOf when the token carries no user_id.
var ErrNoUserID = errors.New("token has no user_id claim")

// UserIDOf extracts the user_id claim of token.
func UserIDOf(token string) (int64, error) {
	claims, err := Inspect(token)
	if err != nil {
		return 0, err
	}
	if claims.UserID == 0 {
		return 0, ErrNoUserID
	}
	return claims.UserID, nil
}
