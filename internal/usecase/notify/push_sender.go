package notify

import (
	"context"
	"errors"
	"time"

	"catchup-notify/internal/domain/entity"
	"catchup-notify/internal/infra/notifier"
	"catchup-notify/internal/resilience/circuitbreaker"
)

var errNoDevice = errors.New("user has no registered device")

// PushSender delivers notifications to every registered device of a user.
type PushSender struct {
	provider notifier.PushProvider
	guard    guardedCall
}

// PushSenderConfig configures NewPushSender.
type PushSenderConfig struct {
	Breaker circuitbreaker.Config
	Timeout time.Duration
	Enabled bool
}

func NewPushSender(provider notifier.PushProvider, cfg PushSenderConfig) *PushSender {
	return &PushSender{
		provider: provider,
		guard:    newGuardedCall(entity.ChannelPush, cfg.Breaker, cfg.Timeout, cfg.Enabled),
	}
}

func (s *PushSender) Channel() entity.Channel {
	return entity.ChannelPush
}

func (s *PushSender) Send(ctx context.Context, user *entity.User, n *entity.Notification) error {
	if err := s.guard.ready(); err != nil {
		return err
	}
	if !user.HasDevice() {
		return &SendError{Channel: entity.ChannelPush, Kind: SendNoDevice, Err: errNoDevice}
	}

	tokens := make([]string, 0, len(user.DeviceTokens))
	for _, t := range user.DeviceTokens {
		if t != "" {
			tokens = append(tokens, t)
		}
	}

	msg := notifier.PushMessage{
		Tokens:   tokens,
		Title:    n.Title.Pick(user.Locale),
		Body:     n.Message.Pick(user.Locale),
		Priority: string(n.Priority),
		Data: map[string]string{
			"notification_id": n.ID.String(),
			"type":            string(n.Type),
		},
	}

	err := s.guard.do(ctx, func(ctx context.Context) error {
		return s.provider.SendPush(ctx, msg)
	})
	if err != nil {
		return classifyProviderError(entity.ChannelPush, err)
	}
	return nil
}

func (s *PushSender) Health() ChannelHealthStatus {
	return s.guard.Health()
}
