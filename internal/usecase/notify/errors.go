package notify

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel errors for notify use case operations.
var (
	// ErrInvalidRequest indicates that a producer request failed validation
	// (missing fields, unknown type, payload not matching the type's shape).
	ErrInvalidRequest = errors.New("invalid notification request")

	// ErrRecipientNotFound indicates that the recipient user does not exist.
	// It is fatal for that notification only and is never retried.
	ErrRecipientNotFound = errors.New("recipient not found")

	// ErrBulkDeliveryFailed is returned by DeliverBulk only when every recipient failed.
	ErrBulkDeliveryFailed = errors.New("bulk delivery failed for every recipient")

	// ErrCircuitBreakerOpen indicates that the provider breaker for a channel is open
	// and sends are rejected until it half-opens.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open for this channel")

	// ErrChannelDisabled indicates that the channel has no real provider configured.
	// Nothing is handed to a provider, so the attempt never counts as sent.
	ErrChannelDisabled = errors.New("channel is disabled")

	// ErrDigestClaimed indicates that another worker holds the send claim on a digest.
	ErrDigestClaimed = errors.New("digest is being sent by another worker")

	// ErrNoSender indicates that no sender is registered for a channel.
	ErrNoSender = errors.New("no sender registered for channel")
)

// DeliveryErrorKind classifies orchestration failures that are reported to the caller.
type DeliveryErrorKind string

const (
	KindRecipientNotFound DeliveryErrorKind = "recipient_not_found"
	KindPersistence       DeliveryErrorKind = "persistence"
)

// DeliveryError is returned by Deliver when a notification could not be orchestrated at all.
// Channel failures are never reported this way; they become delivery status rows.
type DeliveryError struct {
	Kind   DeliveryErrorKind
	UserID uuid.UUID
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to user %s: %s: %v", e.UserID, e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func recipientNotFound(userID uuid.UUID) *DeliveryError {
	return &DeliveryError{Kind: KindRecipientNotFound, UserID: userID, Err: ErrRecipientNotFound}
}

func persistenceFailure(userID uuid.UUID, err error) *DeliveryError {
	return &DeliveryError{Kind: KindPersistence, UserID: userID, Err: err}
}
