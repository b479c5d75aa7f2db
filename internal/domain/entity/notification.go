// Package entity defines the core domain entities and validation logic for the notification engine.
// It contains notifications, per-channel delivery state, recipient preferences, digests and the
// content summaries digests are built from, along with domain-specific errors.
package entity

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// CatalogVersion is the version of the NotificationType enumeration shared with producers.
// Adding or removing a type bumps this number.
const CatalogVersion = 1

// NotificationType is a closed enumeration of domain events that produce notifications.
type NotificationType string

const (
	TypeNewArticle         NotificationType = "new_article"
	TypeBreakingNews       NotificationType = "breaking_news"
	TypeArticleApproved    NotificationType = "article_approved"
	TypeArticleRejected    NotificationType = "article_rejected"
	TypeProposalReviewed   NotificationType = "proposal_reviewed"
	TypeRoleChanged        NotificationType = "role_changed"
	TypeSystemAnnouncement NotificationType = "system_announcement"

	// TypeDigest is never delivered as a notification. It only identifies
	// digest emails in unsubscribe links.
	TypeDigest NotificationType = "digest"
)

// NotificationTypes returns every deliverable notification type.
func NotificationTypes() []NotificationType {
	return []NotificationType{
		TypeNewArticle,
		TypeBreakingNews,
		TypeArticleApproved,
		TypeArticleRejected,
		TypeProposalReviewed,
		TypeRoleChanged,
		TypeSystemAnnouncement,
	}
}

// IsValid reports whether t is a deliverable notification type.
func (t NotificationType) IsValid() bool {
	switch t {
	case TypeNewArticle, TypeBreakingNews, TypeArticleApproved, TypeArticleRejected,
		TypeProposalReviewed, TypeRoleChanged, TypeSystemAnnouncement:
		return true
	}
	return false
}

// IsUnsubscribable reports whether t may appear in an unsubscribe link.
func (t NotificationType) IsUnsubscribable() bool {
	return t == TypeDigest || t.IsValid()
}

// Priority represents the notification priority level.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// LocalizedText maps a locale code (e.g. "en", "ja") to a string.
// No fallback locale is implied; callers supply whichever locales they have.
type LocalizedText map[string]string

// Pick returns the text for locale, then for "en", then for the
// lexicographically first locale present. It returns "" for empty text.
func (lt LocalizedText) Pick(locale string) string {
	if v, ok := lt[locale]; ok && v != "" {
		return v
	}
	if v, ok := lt["en"]; ok && v != "" {
		return v
	}
	keys := make([]string, 0, len(lt))
	for k, v := range lt {
		if v != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	return lt[keys[0]]
}

// Notification represents a user-facing notification created by the delivery orchestrator.
// After creation it is only mutated by read-state updates and delivery-status updates.
type Notification struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Type      NotificationType
	Title     LocalizedText
	Message   LocalizedText
	Payload   Payload
	Priority  Priority
	Read      bool
	ReadAt    *time.Time
	CreatedAt time.Time
}

// MarkAsRead marks the notification as read at the given time.
func (n *Notification) MarkAsRead(at time.Time) {
	n.Read = true
	n.ReadAt = &at
}
