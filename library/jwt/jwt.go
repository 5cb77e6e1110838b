// Package jwt signs and verifies the HS256 tokens of the admin API.
package jwt

import (
	"time"

	"github.com/Laisky/errors/v2"
	gutils "github.com/Laisky/go-utils/v6"
	"github.com/golang-jwt/jwt/v5"
)

const minSecretLen = 16

// JWT signs and parses admin tokens.
type JWT struct {
	secret []byte
	parser *jwt.Parser
}

// New creates a JWT with the shared secret.
func New(secret []byte) (*JWT, error) {
	if len(secret) < minSecretLen {
		return nil, errors.Errorf("jwt secret must be at least %d bytes", minSecretLen)
	}

	return &JWT{
		secret: secret,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithTimeFunc(func() time.Time { return gutils.Clock.GetUTCNow() }),
		),
	}, nil
}

// Sign issues a token for username valid for ttl.
func (j *JWT) Sign(username string, ttl time.Duration) (string, error) {
	if username == "" {
		return "", errors.New("empty username")
	}

	now := gutils.Clock.GetUTCNow()
	claims := &AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username: username,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return token, nil
}

// Parse verifies token and returns its claims.
func (j *JWT) Parse(token string) (*AdminClaims, error) {
	claims := new(AdminClaims)
	if _, err := j.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return j.secret, nil
	}); err != nil {
		return nil, errors.Wrap(err, "parse token")
	}
	if claims.Username == "" {
		return nil, errors.New("token without username")
	}

	return claims, nil
}
