package unsubscribe

import (
	"context"
	"fmt"
	"log/slog"

	"catchup-notify/internal/repository"
)

// Verifier verifies unsubscribe tokens. Implemented by TokenService.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// Service processes unsubscribe links.
type Service struct {
	tokens Verifier
	prefs  repository.PreferenceRepository
}

func NewService(tokens Verifier, prefs repository.PreferenceRepository) *Service {
	return &Service{tokens: tokens, prefs: prefs}
}

// Unsubscribe verifies token and mutes its notification type for its user.
// Muting is idempotent, so following the same link twice succeeds both times.
// Muting "digest" stops digest production for the user.
func (s *Service) Unsubscribe(ctx context.Context, token string) (Claims, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		RecordUnsubscribe("", "invalid")
		slog.Warn("unsubscribe token rejected", slog.Any("error", err))
		return Claims{}, err
	}

	if err := s.prefs.MuteType(ctx, claims.UserID, claims.Type); err != nil {
		RecordUnsubscribe(string(claims.Type), "error")
		return Claims{}, fmt.Errorf("mute %s for %s: %w", claims.Type, claims.UserID, err)
	}

	RecordUnsubscribe(string(claims.Type), "success")
	slog.Info("notification type muted",
		slog.String("user_id", claims.UserID.String()),
		slog.String("type", string(claims.Type)))
	return claims, nil
}
