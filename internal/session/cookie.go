package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errBadCookie = errors.New("invalid session cookie")

// cookieSigner turns a session id into a tamper-proof cookie value.
type cookieSigner struct {
	key []byte
	now func() time.Time
}

func (c *cookieSigner) sign(id string, expires time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:        id,
		IssuedAt:  jwt.NewNumericDate(c.now()),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.key)
}

// verify returns the session id and the expiry the cookie was issued with.
func (c *cookieSigner) verify(value string) (string, time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(value, claims, func(token *jwt.Token) (interface{}, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", errBadCookie, err)
	}
	if !token.Valid || claims.ID == "" {
		return "", time.Time{}, errBadCookie
	}
	return claims.ID, claims.ExpiresAt.Time, nil
}
