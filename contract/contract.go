//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// IRegistry tracks which connections are live for each user.
type IRegistry interface {
	Register(userID, connectionID string) error
	Unregister(connectionID string) (string, bool)
	IsReachable(userID string) bool
	ConnectionsFor(userID string) []string
	OwnerOf(connectionID string) (string, bool)
}

// Emitter delivers an event to a connection addressed by its identifier.
// Emitting to a closed or unknown connection is not an error.
type Emitter interface {
	Emit(ctx context.Context, connectionID string, evt event.Outbound) error
}

type ThreadResolver interface {
	ResolveOrCreate(ctx context.Context, senderID, receiverID string) (chat.Thread, error)
}

type MessageStore interface {
	Persist(ctx context.Context, cmd chat.PersistCommand) (chat.Message, error)
}

// HistoryReader pages through the thread shared by two participants, newest first.
type HistoryReader interface {
	GetThreadMessages(ctx context.Context, userID, peerID string, cursor *string, limit int) (chat.Thread, []chat.Message, *string, error)
}

type MessageSearcher interface {
	Search(ctx context.Context, userID, terms string, limit int) ([]chat.Message, error)
}

// MessageIndexer feeds persisted messages to the full-text index.
type MessageIndexer interface {
	IndexBatch(ctx context.Context, messages []chat.Message) error
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

type Publisher interface {
	Publish(e event.DomainEvent)
}

type CommandHandler interface {
	Handle(ctx context.Context, cmd chat.Command) error
}

type Dispatcher interface {
	Dispatch(cmd chat.Command) error
}
