package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultTokenTTL = 15 * time.Minute

var errTokenInvalid = errors.New("token invalid")

// Claims are the access token claims: the registered subject plus the
// session id.
type Claims struct {
	jwt.RegisteredClaims
	SID string `json:"sid"`
}

type tokenIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

func (t *tokenIssuer) issue(sub, sid string) (string, error) {
	now := t.clock()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		SID: sid,
	})
	return token.SignedString(t.secret)
}

func (t *tokenIssuer) parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.clock))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.SID == "" || claims.Subject == "" {
		return nil, errTokenInvalid
	}
	return claims, nil
}
