package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DigestType is the scheduling cycle of a digest.
type DigestType string

const (
	DigestDaily  DigestType = "daily"
	DigestWeekly DigestType = "weekly"
)

// IsValid reports whether t is a known digest type.
func (t DigestType) IsValid() bool {
	return t == DigestDaily || t == DigestWeekly
}

// DigestTypeFor maps a digest frequency to its digest type.
// It returns false for immediate or unknown frequencies.
func DigestTypeFor(f DigestFrequency) (DigestType, bool) {
	switch f {
	case FrequencyDaily:
		return DigestDaily, true
	case FrequencyWeekly:
		return DigestWeekly, true
	}
	return "", false
}

// CycleStart returns the start of the scheduling cycle containing t in loc:
// midnight for daily digests, Monday midnight (ISO week) for weekly digests.
func (t DigestType) CycleStart(at time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := at.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	if t != DigestWeekly {
		return day
	}
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// Window returns the length of one cycle.
func (t DigestType) Window() time.Duration {
	if t == DigestWeekly {
		return 7 * 24 * time.Hour
	}
	return 24 * time.Hour
}

// DigestStatus is the lifecycle state of a digest.
type DigestStatus string

const (
	DigestPending DigestStatus = "pending"
	DigestSent    DigestStatus = "sent"
	DigestFailed  DigestStatus = "failed"
)

// DigestContent is the bundle of summaries carried by one digest.
// TotalCount always equals len(Articles)+len(News); use NewDigestContent.
type DigestContent struct {
	Articles   []ContentSummary `json:"articles"`
	News       []ContentSummary `json:"news"`
	TotalCount int              `json:"total_count"`
}

// NewDigestContent builds a content bundle with a consistent total.
func NewDigestContent(articles, news []ContentSummary) DigestContent {
	if articles == nil {
		articles = []ContentSummary{}
	}
	if news == nil {
		news = []ContentSummary{}
	}
	return DigestContent{
		Articles:   articles,
		News:       news,
		TotalCount: len(articles) + len(news),
	}
}

// IsEmpty reports whether the bundle has nothing to send.
func (c DigestContent) IsEmpty() bool {
	return c.TotalCount == 0
}

// Validate checks the total-count invariant.
func (c DigestContent) Validate() error {
	if c.TotalCount != len(c.Articles)+len(c.News) {
		return &ValidationError{
			Field:   "content.total_count",
			Message: fmt.Sprintf("total %d does not match %d articles + %d news", c.TotalCount, len(c.Articles), len(c.News)),
		}
	}
	if c.TotalCount == 0 {
		return &ValidationError{Field: "content", Message: "digest must not be empty"}
	}
	return nil
}

// NotificationDigest is one user's digest for one scheduling cycle.
type NotificationDigest struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Type          DigestType
	Content       DigestContent
	ScheduledFor  time.Time
	SentAt        *time.Time
	Status        DigestStatus
	FailureReason *string
	CreatedAt     time.Time
}

// NewDigest creates a pending digest. Empty or inconsistent content is rejected.
func NewDigest(userID uuid.UUID, t DigestType, content DigestContent, scheduledFor, now time.Time) (*NotificationDigest, error) {
	if !t.IsValid() {
		return nil, &ValidationError{Field: "type", Message: fmt.Sprintf("unknown digest type %q", t)}
	}
	if err := content.Validate(); err != nil {
		return nil, err
	}
	return &NotificationDigest{
		ID:           uuid.New(),
		UserID:       userID,
		Type:         t,
		Content:      content,
		ScheduledFor: scheduledFor,
		Status:       DigestPending,
		CreatedAt:    now,
	}, nil
}

// MarkSent transitions the digest to sent. A sent digest cannot be sent again.
func (d *NotificationDigest) MarkSent(at time.Time) error {
	if d.Status == DigestSent {
		return fmt.Errorf("%w: digest %s already sent", ErrInvalidTransition, d.ID)
	}
	d.Status = DigestSent
	d.SentAt = &at
	d.FailureReason = nil
	return nil
}

// MarkFailed records a failed send. The digest may be retried later.
func (d *NotificationDigest) MarkFailed(reason string) error {
	if d.Status == DigestSent {
		return fmt.Errorf("%w: digest %s already sent", ErrInvalidTransition, d.ID)
	}
	d.Status = DigestFailed
	d.FailureReason = &reason
	return nil
}
