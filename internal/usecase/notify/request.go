package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"catchup-notify/internal/domain/entity"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Request is a producer's ask to notify one user.
type Request struct {
	UserID   uuid.UUID               `json:"user_id" validate:"required"`
	Type     entity.NotificationType `json:"type" validate:"required"`
	Title    entity.LocalizedText    `json:"title" validate:"required,min=1"`
	Message  entity.LocalizedText    `json:"message" validate:"required,min=1"`
	Payload  json.RawMessage         `json:"payload,omitempty"`
	Priority entity.Priority         `json:"priority,omitempty" validate:"omitempty,oneof=low normal high urgent"`
}

// TypeCatalog is the versioned notification type enumeration shared with producers.
type TypeCatalog interface {
	Supports(t entity.NotificationType) bool
	DefaultPriority(t entity.NotificationType) entity.Priority
}

// requestValidator turns requests into notifications at the producer boundary.
type requestValidator struct {
	validate *validator.Validate
	catalog  TypeCatalog
}

func newRequestValidator(catalog TypeCatalog) *requestValidator {
	return &requestValidator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		catalog:  catalog,
	}
}

// build validates req and returns the notification to persist.
// Every failure wraps ErrInvalidRequest.
func (v *requestValidator) build(req Request, now time.Time) (*entity.Notification, error) {
	if err := v.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if !req.Type.IsValid() || (v.catalog != nil && !v.catalog.Supports(req.Type)) {
		return nil, fmt.Errorf("%w: unknown notification type %q", ErrInvalidRequest, req.Type)
	}
	if err := entity.ValidateLocalizedText("title", req.Title); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := entity.ValidateLocalizedText("message", req.Message); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	payload, err := entity.DecodePayload(req.Type, req.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	priority := req.Priority
	if priority == "" {
		priority = entity.PriorityNormal
		if v.catalog != nil {
			priority = v.catalog.DefaultPriority(req.Type)
		}
	}

	return &entity.Notification{
		ID:        uuid.New(),
		UserID:    req.UserID,
		Type:      req.Type,
		Title:     req.Title,
		Message:   req.Message,
		Payload:   payload,
		Priority:  priority,
		CreatedAt: now,
	}, nil
}
