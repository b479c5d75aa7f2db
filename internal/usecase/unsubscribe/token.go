// Package unsubscribe issues and verifies the signed tokens carried by
// one-click unsubscribe links, and mutes notification types on their behalf.
package unsubscribe

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"catchup-notify/internal/domain/entity"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer   = "catchup-notify"
	audience = "unsubscribe"

	// DefaultTTL is how long an unsubscribe link stays valid.
	DefaultTTL = 30 * 24 * time.Hour

	minSecretLength = 32
)

var (
	// ErrInvalidToken is returned for malformed, tampered, expired or foreign tokens.
	ErrInvalidToken = errors.New("invalid unsubscribe token")

	// ErrWeakSecret is returned when the signing secret is too short.
	ErrWeakSecret = fmt.Errorf("unsubscribe secret must be at least %d bytes", minSecretLength)
)

// Claims is what an unsubscribe token proves.
type Claims struct {
	UserID   uuid.UUID
	Type     entity.NotificationType
	IssuedAt time.Time
}

type tokenClaims struct {
	Type string `json:"ntype"`
	jwt.RegisteredClaims
}

// TokenConfig configures NewTokenService.
type TokenConfig struct {
	Secret []byte
	TTL    time.Duration
	// BaseURL is the public unsubscribe endpoint, e.g. https://notify.example.com/unsubscribe
	BaseURL string
	Now     func() time.Time
}

// TokenService is stateless: any replica sharing the secret can verify a token.
type TokenService struct {
	secret  []byte
	ttl     time.Duration
	baseURL string
	now     func() time.Time
}

func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.Secret) < minSecretLength {
		return nil, ErrWeakSecret
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TokenService{
		secret:  cfg.Secret,
		ttl:     cfg.TTL,
		baseURL: cfg.BaseURL,
		now:     cfg.Now,
	}, nil
}

// Issue signs a token binding userID to t.
func (s *TokenService) Issue(userID uuid.UUID, t entity.NotificationType) (string, error) {
	if userID == uuid.Nil {
		return "", fmt.Errorf("issue unsubscribe token: %w: user id is required", entity.ErrInvalidInput)
	}
	if !t.IsUnsubscribable() {
		return "", fmt.Errorf("issue unsubscribe token: %w: type %q", entity.ErrInvalidInput, t)
	}

	now := s.now()
	claims := tokenClaims{
		Type: string(t),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign unsubscribe token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, issuer, audience and expiry of token.
// Every failure is reported as ErrInvalidToken.
func (s *TokenService) Verify(token string) (Claims, error) {
	if token == "" {
		return Claims{}, ErrInvalidToken
	}

	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID == uuid.Nil {
		return Claims{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	t := entity.NotificationType(claims.Type)
	if !t.IsUnsubscribable() {
		return Claims{}, fmt.Errorf("%w: bad type %q", ErrInvalidToken, claims.Type)
	}

	out := Claims{UserID: userID, Type: t}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}

// UnsubscribeURL returns the public link for userID and t.
func (s *TokenService) UnsubscribeURL(userID uuid.UUID, t entity.NotificationType) (string, error) {
	token, err := s.Issue(userID, t)
	if err != nil {
		return "", err
	}
	if s.baseURL == "" {
		return "", errors.New("unsubscribe base url is not configured")
	}
	return s.baseURL + "?token=" + url.QueryEscape(token), nil
}
