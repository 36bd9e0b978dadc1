// Package auth issues and verifies the signed tokens carried by API requests.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pavelanni/quizhall/internal/model"
)

const issuer = "quizhall"

var ErrInvalidToken = errors.New("invalid token")

// Claims ties a token to a server-side login session. ID (jti) is the
// AuthSession id, Subject the user id.
type Claims struct {
	Admin bool `json:"adm,omitempty"`
	jwt.RegisteredClaims
}

// SessionID returns the login session referenced by the token.
func (c *Claims) SessionID() string { return c.ID }

// UserID returns the user the token was issued to.
func (c *Claims) UserID() string { return c.Subject }

// Issuer signs HS256 tokens.
type Issuer struct {
	hmac []byte
	now  func() time.Time
}

// NewIssuer creates an issuer with the given signing secret.
func NewIssuer(secret string) *Issuer {
	return &Issuer{hmac: []byte(secret), now: time.Now}
}

// Issue signs a token for the login session of u. The token expires with the session.
func (a *Issuer) Issue(u *model.User, sess *model.AuthSession) (string, error) {
	claims := &Claims{
		Admin: u.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sess.ID,
			Subject:   u.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(a.now()),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(a.hmac)
}

// Parse verifies the signature, algorithm, issuer and expiry of a token.
func (a *Issuer) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return a.hmac, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || c.ID == "" || c.Subject == "" {
		return nil, ErrInvalidToken
	}
	return c, nil
}
