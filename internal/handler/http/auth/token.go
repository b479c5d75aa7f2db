package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IssueProducerToken signs a producer service token for name valid for ttl.
func IssueProducerToken(secret []byte, name string, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) < minSecretLength {
		return "", ErrWeakSecret
	}
	if name == "" {
		return "", errors.New("producer name is required")
	}
	if ttl <= 0 {
		return "", errors.New("token ttl must be positive")
	}
	claims := ProducerClaims{
		Role: RoleProducer,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   name,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
