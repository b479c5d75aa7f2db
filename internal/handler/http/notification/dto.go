package notification

import (
	"time"

	"catchup-notify/internal/domain/entity"
	"catchup-notify/internal/usecase/notify"

	"github.com/google/uuid"
)

// maxBulkRequests caps one bulk call.
const maxBulkRequests = 1000

// DTO is the response body of a created notification.
type DTO struct {
	ID        uuid.UUID               `json:"id"`
	UserID    uuid.UUID               `json:"user_id"`
	Type      entity.NotificationType `json:"type"`
	Priority  entity.Priority         `json:"priority"`
	CreatedAt time.Time               `json:"created_at"`
}

func toDTO(n *entity.Notification) DTO {
	return DTO{
		ID:        n.ID,
		UserID:    n.UserID,
		Type:      n.Type,
		Priority:  n.Priority,
		CreatedAt: n.CreatedAt,
	}
}

// BulkRequest is the body of POST /notifications/bulk.
type BulkRequest struct {
	Notifications []notify.Request `json:"notifications"`
}
