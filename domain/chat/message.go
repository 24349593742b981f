// Package chat contains the core concepts of the relay: messages, threads
// and the commands the transport hands to the pipeline.
// Messages are immutable once persisted.
package chat

import (
	"time"

	"github.com/google/uuid"
)

type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
)

// StatusFor returns the delivery state recorded for a message given the
// receiver's reachability at send time.
func StatusFor(reachable bool) DeliveryStatus {
	if reachable {
		return StatusDelivered
	}
	return StatusSent
}

// Message represents a persisted chat message.
type Message struct {
	ID         uuid.UUID      `json:"id"`
	Content    string         `json:"content"`
	SenderID   string         `json:"senderId"`
	ReceiverID string         `json:"receiverId"`
	ThreadID   uuid.UUID      `json:"threadId"`
	Status     DeliveryStatus `json:"status"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// PersistCommand carries everything the message store needs to write a
// message. Thread may be a freshly allocated thread (IsNew) that the store
// commits together with the message.
type PersistCommand struct {
	Content    string `validate:"required"`
	SenderID   string `validate:"required"`
	ReceiverID string `validate:"required"`
	Thread     Thread
	Status     DeliveryStatus `validate:"required,oneof=sent delivered"`
}
