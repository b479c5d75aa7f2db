package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Payload is the structured, type-specific body of a notification.
// Each NotificationType has exactly one payload shape; see PayloadFor.
type Payload interface {
	Validate() error
}

// ArticlePayload is carried by new_article and article_approved notifications.
type ArticlePayload struct {
	ArticleID int64  `json:"article_id"`
	Slug      string `json:"slug,omitempty"`
	URL       string `json:"url"`
}

func (p *ArticlePayload) Validate() error {
	if p.ArticleID <= 0 {
		return &ValidationError{Field: "payload.article_id", Message: "must be positive"}
	}
	return ValidateURL("payload.url", p.URL)
}

// BreakingNewsPayload is carried by breaking_news notifications.
type BreakingNewsPayload struct {
	NewsID   int64  `json:"news_id"`
	URL      string `json:"url"`
	Headline string `json:"headline,omitempty"`
}

func (p *BreakingNewsPayload) Validate() error {
	if p.NewsID <= 0 {
		return &ValidationError{Field: "payload.news_id", Message: "must be positive"}
	}
	return ValidateURL("payload.url", p.URL)
}

// ReviewPayload is carried by article_rejected notifications.
type ReviewPayload struct {
	ArticleID  int64  `json:"article_id"`
	ReviewerID string `json:"reviewer_id,omitempty"`
	Reason     string `json:"reason"`
}

func (p *ReviewPayload) Validate() error {
	if p.ArticleID <= 0 {
		return &ValidationError{Field: "payload.article_id", Message: "must be positive"}
	}
	if p.Reason == "" {
		return &ValidationError{Field: "payload.reason", Message: "is required"}
	}
	return nil
}

// ProposalPayload is carried by proposal_reviewed notifications.
type ProposalPayload struct {
	ProposalID int64  `json:"proposal_id"`
	Decision   string `json:"decision"`
}

func (p *ProposalPayload) Validate() error {
	if p.ProposalID <= 0 {
		return &ValidationError{Field: "payload.proposal_id", Message: "must be positive"}
	}
	if p.Decision != "accepted" && p.Decision != "declined" {
		return &ValidationError{Field: "payload.decision", Message: "must be accepted or declined"}
	}
	return nil
}

// RoleChangePayload is carried by role_changed notifications.
type RoleChangePayload struct {
	OldRole string `json:"old_role"`
	NewRole string `json:"new_role"`
}

func (p *RoleChangePayload) Validate() error {
	if p.NewRole == "" {
		return &ValidationError{Field: "payload.new_role", Message: "is required"}
	}
	return nil
}

// AnnouncementPayload is carried by system_announcement notifications. URL is optional.
type AnnouncementPayload struct {
	URL string `json:"url,omitempty"`
}

func (p *AnnouncementPayload) Validate() error {
	if p.URL == "" {
		return nil
	}
	return ValidateURL("payload.url", p.URL)
}

// PayloadFor returns an empty payload of the shape expected for t.
func PayloadFor(t NotificationType) (Payload, error) {
	switch t {
	case TypeNewArticle, TypeArticleApproved:
		return &ArticlePayload{}, nil
	case TypeBreakingNews:
		return &BreakingNewsPayload{}, nil
	case TypeArticleRejected:
		return &ReviewPayload{}, nil
	case TypeProposalReviewed:
		return &ProposalPayload{}, nil
	case TypeRoleChanged:
		return &RoleChangePayload{}, nil
	case TypeSystemAnnouncement:
		return &AnnouncementPayload{}, nil
	}
	return nil, fmt.Errorf("%w: unknown notification type %q", ErrInvalidInput, t)
}

// DecodePayload decodes raw JSON into the payload shape for t and validates it.
// Unknown fields are rejected so that producers cannot smuggle untyped data downstream.
func DecodePayload(t NotificationType, raw []byte) (Payload, error) {
	p, err := PayloadFor(t)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		if err := dec.Decode(p); err != nil {
			return nil, &ValidationError{Field: "payload", Message: fmt.Sprintf("invalid %s payload: %v", t, err)}
		}
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// EncodePayload serializes p for storage. A nil payload encodes as "{}".
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}
