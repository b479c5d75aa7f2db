// Package auth authenticates producer services calling the ingestion API.
// Producers present an HS256 service JWT with role "producer".
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"catchup-notify/internal/handler/http/requestid"
	"catchup-notify/internal/handler/http/respond"

	"github.com/golang-jwt/jwt/v5"
)

// RoleProducer is the only role allowed to create notifications.
const RoleProducer = "producer"

// minSecretLength matches the unsubscribe token secret requirement.
const minSecretLength = 32

var ErrWeakSecret = fmt.Errorf("producer JWT secret must be at least %d bytes", minSecretLength)

type ctxKey string

const ctxProducer ctxKey = "producer"

// ProducerClaims are the claims of a producer service token.
type ProducerClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authz returns middleware that requires a valid producer token on every
// endpoint except PublicEndpoints.
func Authz(secret []byte) (func(http.Handler) http.Handler, error) {
	if len(secret) < minSecretLength {
		return nil, ErrWeakSecret
	}
	return authz(secret, time.Now), nil
}

func authz(secret []byte, now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsPublicEndpoint(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			producer, role, err := validateJWT(r.Header.Get("Authorization"), secret, now)
			if err != nil {
				recordAuthResult("unauthorized", time.Since(start))
				slog.Warn("producer authentication failed",
					slog.String("request_id", requestid.FromContext(r.Context())),
					slog.String("path", r.URL.Path),
					slog.String("reason", err.Error()))
				respond.SafeError(w, http.StatusUnauthorized,
					respond.NewAppError(http.StatusUnauthorized, "unauthorized", err))
				return
			}
			if role != RoleProducer {
				recordAuthResult("forbidden", time.Since(start))
				slog.Warn("token without producer role",
					slog.String("request_id", requestid.FromContext(r.Context())),
					slog.String("subject", producer),
					slog.String("role", role))
				respond.SafeError(w, http.StatusForbidden,
					respond.NewAppError(http.StatusForbidden, "forbidden", nil))
				return
			}

			recordAuthResult("accepted", time.Since(start))
			recordProducerRequest(producer, r.Method)
			ctx := context.WithValue(r.Context(), ctxProducer, producer)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ProducerFromContext returns the authenticated producer name.
func ProducerFromContext(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(ctxProducer).(string)
	return p, ok && p != ""
}

func validateJWT(header string, secret []byte, now func() time.Time) (string, string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", "", errors.New("missing bearer token")
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(header, prefix))

	var claims ProducerClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	if err != nil {
		return "", "", fmt.Errorf("invalid token: %w", err)
	}
	if claims.Subject == "" {
		return "", "", errors.New("invalid sub claim")
	}
	if claims.Role == "" {
		return "", "", errors.New("invalid role claim")
	}
	return claims.Subject, claims.Role, nil
}
