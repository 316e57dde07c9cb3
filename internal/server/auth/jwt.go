// Package auth signs and verifies the HS256 tokens used for sessions.
// Access and refresh tokens share one Codec type and differ only in the
// secret and lifetime they are built with.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sparkbridge/server/internal/server/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims carries the session payload next to the registered claims.
// ID (jti) is random per token, so two tokens minted for the same user in
// the same second are still distinct strings.
type Claims struct {
	jwt.RegisteredClaims
	UserID  string `json:"userId"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"isAdmin"`
}

// Codec signs and verifies tokens with a single secret and lifetime.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewCodec(secret []byte, ttl time.Duration) *Codec {
	return &Codec{secret: secret, ttl: ttl, now: time.Now}
}

// TTL is the lifetime stamped into every token this codec signs.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Sign returns a token for p and the instant it expires. The instant is the
// exp claim itself, whole seconds, so a stored copy expires with the token.
func (c *Codec) Sign(p models.TokenPayload) (string, time.Time, error) {
	now := c.now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		UserID:  p.UserID,
		Email:   p.Email,
		IsAdmin: p.IsAdmin,
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, claims.ExpiresAt.Time, nil
}

// Verify checks signature, algorithm and expiry and returns the payload.
// Expired tokens yield ErrTokenExpired; anything else wrong yields
// ErrInvalidToken.
func (c *Codec) Verify(tokenString string) (models.TokenPayload, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.TokenPayload{}, ErrTokenExpired
		}
		return models.TokenPayload{}, ErrInvalidToken
	}

	if !token.Valid || claims.UserID == "" {
		return models.TokenPayload{}, ErrInvalidToken
	}

	return models.TokenPayload{
		UserID:  claims.UserID,
		Email:   claims.Email,
		IsAdmin: claims.IsAdmin,
	}, nil
}
