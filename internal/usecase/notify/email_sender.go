package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"catchup-notify/internal/domain/entity"
	"catchup-notify/internal/infra/notifier"
	"catchup-notify/internal/resilience/circuitbreaker"

	"github.com/google/uuid"
)

// UnsubscribeLinker builds a signed one-click unsubscribe URL.
type UnsubscribeLinker interface {
	UnsubscribeURL(userID uuid.UUID, t entity.NotificationType) (string, error)
}

// EmailSender delivers notifications and digests by email.
type EmailSender struct {
	provider notifier.EmailProvider
	links    UnsubscribeLinker
	guard    guardedCall
}

// EmailSenderConfig configures NewEmailSender.
type EmailSenderConfig struct {
	Breaker circuitbreaker.Config
	Timeout time.Duration
	// Enabled is false when the provider is a no-op. A disabled sender
	// fails every attempt with ErrChannelDisabled.
	Enabled bool
}

func NewEmailSender(provider notifier.EmailProvider, links UnsubscribeLinker, cfg EmailSenderConfig) *EmailSender {
	return &EmailSender{
		provider: provider,
		links:    links,
		guard:    newGuardedCall(entity.ChannelEmail, cfg.Breaker, cfg.Timeout, cfg.Enabled),
	}
}

func (s *EmailSender) Channel() entity.Channel {
	return entity.ChannelEmail
}

func (s *EmailSender) Send(ctx context.Context, user *entity.User, n *entity.Notification) error {
	if err := s.guard.ready(); err != nil {
		return err
	}
	if err := entity.ValidateEmailAddress(user.Email); err != nil {
		return &SendError{Channel: entity.ChannelEmail, Kind: SendInvalidAddress, Err: err}
	}

	link, err := s.unsubscribeURL(user.ID, n.Type)
	if err != nil {
		return err
	}

	body := n.Message.Pick(user.Locale)
	msg := notifier.EmailMessage{
		To:             user.Email,
		Subject:        n.Title.Pick(user.Locale),
		TextBody:       withFooter(body, link),
		Tag:            string(n.Type),
		UnsubscribeURL: link,
	}
	return s.send(ctx, msg)
}

// SendDigest emails a digest. Unsubscribing from its link mutes digests.
func (s *EmailSender) SendDigest(ctx context.Context, user *entity.User, d *entity.NotificationDigest) error {
	if err := s.guard.ready(); err != nil {
		return err
	}
	if err := entity.ValidateEmailAddress(user.Email); err != nil {
		return &SendError{Channel: entity.ChannelEmail, Kind: SendInvalidAddress, Err: err}
	}

	link, err := s.unsubscribeURL(user.ID, entity.TypeDigest)
	if err != nil {
		return err
	}

	msg := notifier.EmailMessage{
		To:             user.Email,
		Subject:        digestSubject(d),
		TextBody:       withFooter(digestBody(d), link),
		Tag:            "digest_" + string(d.Type),
		UnsubscribeURL: link,
	}
	return s.send(ctx, msg)
}

func (s *EmailSender) Health() ChannelHealthStatus {
	return s.guard.Health()
}

func (s *EmailSender) send(ctx context.Context, msg notifier.EmailMessage) error {
	err := s.guard.do(ctx, func(ctx context.Context) error {
		return s.provider.SendEmail(ctx, msg)
	})
	if err != nil {
		return classifyProviderError(entity.ChannelEmail, err)
	}
	return nil
}

func (s *EmailSender) unsubscribeURL(userID uuid.UUID, t entity.NotificationType) (string, error) {
	if s.links == nil {
		return "", nil
	}
	link, err := s.links.UnsubscribeURL(userID, t)
	if err != nil {
		return "", &SendError{Channel: entity.ChannelEmail, Kind: SendInternal, Err: fmt.Errorf("issue unsubscribe link: %w", err)}
	}
	return link, nil
}

func withFooter(body, link string) string {
	if link == "" {
		return body
	}
	return body + "\n\n--\nUnsubscribe: " + link + "\n"
}

func digestSubject(d *entity.NotificationDigest) string {
	label := "Daily"
	if d.Type == entity.DigestWeekly {
		label = "Weekly"
	}
	return fmt.Sprintf("%s digest: %d new items", label, d.Content.TotalCount)
}

func digestBody(d *entity.NotificationDigest) string {
	var b strings.Builder
	writeSection := func(title string, items []entity.ContentSummary) {
		if len(items) == 0 {
			return
		}
		b.WriteString(title)
		b.WriteString("\n")
		for _, item := range items {
			fmt.Fprintf(&b, "- %s\n", item.Title)
			if item.URL != "" {
				fmt.Fprintf(&b, "  %s\n", item.URL)
			}
		}
		b.WriteString("\n")
	}
	writeSection("Articles", d.Content.Articles)
	writeSection("News", d.Content.News)
	return strings.TrimRight(b.String(), "\n")
}
