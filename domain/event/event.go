package event

import (
	"chat-relay/domain/chat"

	"github.com/google/uuid"
)

// DomainEvent is published after the pipeline changed durable state.
// Permanent sinks (search index, stats) consume it asynchronously.
type DomainEvent interface {
	ThreadID() uuid.UUID
}

type MessagePersisted struct {
	Message   chat.Message
	Delivered bool
}

func (m MessagePersisted) ThreadID() uuid.UUID {
	return m.Message.ThreadID
}
