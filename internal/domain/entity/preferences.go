package entity

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// DigestFrequency controls whether email and push are sent immediately or folded into a digest.
type DigestFrequency string

const (
	FrequencyImmediate DigestFrequency = "immediate"
	FrequencyDaily     DigestFrequency = "daily"
	FrequencyWeekly    DigestFrequency = "weekly"
)

// IsValid reports whether f is a known frequency.
func (f DigestFrequency) IsValid() bool {
	switch f {
	case FrequencyImmediate, FrequencyDaily, FrequencyWeekly:
		return true
	}
	return false
}

// IsDigest reports whether f defers email and push to a digest.
func (f DigestFrequency) IsDigest() bool {
	return f == FrequencyDaily || f == FrequencyWeekly
}

// NotificationPreferences holds per-user channel switches.
type NotificationPreferences struct {
	UserID          uuid.UUID
	InAppEnabled    bool
	EmailEnabled    bool
	PushEnabled     bool
	DigestFrequency DigestFrequency
	MutedTypes      []NotificationType
	UpdatedAt       time.Time
}

// DefaultPreferences returns the platform defaults for a user without a stored row:
// in-app on, email on, push off, immediate, nothing muted.
func DefaultPreferences(userID uuid.UUID) NotificationPreferences {
	return NotificationPreferences{
		UserID:          userID,
		InAppEnabled:    true,
		EmailEnabled:    true,
		PushEnabled:     false,
		DigestFrequency: FrequencyImmediate,
	}
}

// Normalize replaces invalid fields with defaults and drops unknown muted types.
// It reports whether anything was changed.
func (p *NotificationPreferences) Normalize() bool {
	changed := false
	if !p.DigestFrequency.IsValid() {
		p.DigestFrequency = FrequencyImmediate
		changed = true
	}
	kept := p.MutedTypes[:0:0]
	for _, t := range p.MutedTypes {
		if t.IsUnsubscribable() && !slices.Contains(kept, t) {
			kept = append(kept, t)
			continue
		}
		changed = true
	}
	p.MutedTypes = kept
	return changed
}

// IsMuted reports whether the user unsubscribed from t.
func (p NotificationPreferences) IsMuted(t NotificationType) bool {
	return slices.Contains(p.MutedTypes, t)
}

// Mute adds t to the muted set. It reports whether the set changed.
func (p *NotificationPreferences) Mute(t NotificationType) bool {
	if p.IsMuted(t) {
		return false
	}
	p.MutedTypes = append(p.MutedTypes, t)
	return true
}

// ChannelEnabled reports the switch for ch.
func (p NotificationPreferences) ChannelEnabled(ch Channel) bool {
	switch ch {
	case ChannelInApp:
		return p.InAppEnabled
	case ChannelEmail:
		return p.EmailEnabled
	case ChannelPush:
		return p.PushEnabled
	}
	return false
}
