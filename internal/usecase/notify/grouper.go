package notify

import (
	"catchup-notify/internal/domain/entity"

	"github.com/google/uuid"
)

// RecipientBatch is every notification of one bulk call addressed to one user.
type RecipientBatch struct {
	UserID        uuid.UUID
	Notifications []*entity.Notification
}

// GroupByRecipient partitions notifications by recipient.
// Batches are ordered by first appearance; each batch keeps input order.
func GroupByRecipient(ns []*entity.Notification) []RecipientBatch {
	index := make(map[uuid.UUID]int, len(ns))
	batches := make([]RecipientBatch, 0)
	for _, n := range ns {
		i, ok := index[n.UserID]
		if !ok {
			i = len(batches)
			index[n.UserID] = i
			batches = append(batches, RecipientBatch{UserID: n.UserID})
		}
		batches[i].Notifications = append(batches[i].Notifications, n)
	}
	return batches
}
