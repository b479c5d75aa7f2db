package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"catchup-notify/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_Publish(t *testing.T) {
	store := newFakeCmdable()
	p := NewPublisher(NewClient(store))
	n := &entity.Notification{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Type:      entity.TypeBreakingNews,
		Title:     entity.LocalizedText{"en": "Breaking", "ja": "速報"},
		Message:   entity.LocalizedText{"en": "Something happened"},
		Priority:  entity.PriorityHigh,
		CreatedAt: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}

	require.NoError(t, p.Publish(context.Background(), n, "ja"))
	require.Len(t, store.published, 1)
	assert.Equal(t, "notifications:"+n.UserID.String(), store.published[0].channel)

	var ev RealtimeEvent
	require.NoError(t, json.Unmarshal([]byte(store.published[0].message.(string)), &ev))
	assert.Equal(t, n.ID.String(), ev.NotificationID)
	assert.Equal(t, "速報", ev.Title)
	assert.Equal(t, "Something happened", ev.Message)
	assert.Equal(t, entity.PriorityHigh, ev.Priority)
}

func TestPublisher_NotInitialized(t *testing.T) {
	p := NewPublisher(nil)
	err := p.Publish(context.Background(), &entity.Notification{}, "en")
	assert.ErrorIs(t, err, ErrNotInitialized)
}
