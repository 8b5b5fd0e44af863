package authflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/kbukum/accountguard/errors"
)

// Claims is the session token payload.
type Claims struct {
	Username string `json:"name"`
	jwt.RegisteredClaims
}

// issueToken signs a session token for an authenticated account.
func (c *Coordinator) issueToken(address, username string) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   address,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.cfg.Session.TokenTTL())),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.signingKey)
	if err != nil {
		return "", apperrors.Internal(fmt.Errorf("authflow: sign token: %w", err))
	}
	return signed, nil
}

// ParseToken verifies a session token and returns its claims. Expired tokens
// map to SESSION_EXPIRED, everything else to INVALID_CREDENTIALS.
func (c *Coordinator) ParseToken(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("authflow: unexpected signing method %v", t.Header["alg"])
		}
		return c.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.SessionExpired(claims.ID)
		}
		return nil, apperrors.InvalidCredentials().WithCause(err)
	}
	return claims, nil
}
