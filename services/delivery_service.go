package services

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	"fmt"
	"log/slog"
)

// DeliveryService is the relay pipeline for a single outbound message:
// validate, snapshot the receiver presence, resolve the thread, persist,
// then acknowledge the sender and notify the receiver connections.
// Nothing is retried, every failure is reported to the sender.
type DeliveryService struct {
	log              *slog.Logger
	registry         contract.IRegistry
	resolver         contract.ThreadResolver
	store            contract.MessageStore
	emitter          contract.Emitter
	publisher        contract.Publisher
	stats            *observability.RelayStats
	maxContentLength int
}

func NewDeliveryService(
	log *slog.Logger,
	registry contract.IRegistry,
	resolver contract.ThreadResolver,
	store contract.MessageStore,
	emitter contract.Emitter,
	publisher contract.Publisher,
	stats *observability.RelayStats,
	maxContentLength int) *DeliveryService {
	return &DeliveryService{
		log:              log,
		registry:         registry,
		resolver:         resolver,
		store:            store,
		emitter:          emitter,
		publisher:        publisher,
		stats:            stats,
		maxContentLength: maxContentLength,
	}
}

func (s *DeliveryService) Send(ctx context.Context, cmd chat.SendMessageCommand) error {
	if err := ValidateSendMessage(cmd, s.maxContentLength); err != nil {
		s.log.Warn("Rejected message", "connection_id", cmd.Connection, "error", err)
		return s.fail(ctx, cmd.Connection, err)
	}

	// Point-in-time snapshot, it decides both the stored status and the fan-out
	reachable := s.registry.IsReachable(cmd.ReceiverID)

	thread, err := s.resolver.ResolveOrCreate(ctx, cmd.SenderID, cmd.ReceiverID)
	if err != nil {
		s.log.Error("Thread resolution failed", "sender_id", cmd.SenderID,
			"receiver_id", cmd.ReceiverID, "error", err)
		return s.fail(ctx, cmd.Connection, err)
	}

	message, err := s.store.Persist(ctx, chat.PersistCommand{
		Content:    cmd.Content,
		SenderID:   cmd.SenderID,
		ReceiverID: cmd.ReceiverID,
		Thread:     thread,
		Status:     chat.StatusFor(reachable),
	})
	if err != nil {
		s.log.Error("Message persistence failed", "sender_id", cmd.SenderID,
			"receiver_id", cmd.ReceiverID, "error", err)
		return s.fail(ctx, cmd.Connection, err)
	}

	s.emit(ctx, cmd.Connection, event.MessageSaved{
		MessageDelivery: event.MessageDelivery{Message: message, IsDelivered: reachable},
	})

	if reachable {
		// Re-queried: connections opened since the snapshot get the message too
		for _, connectionID := range s.registry.ConnectionsFor(cmd.ReceiverID) {
			s.emit(ctx, connectionID, event.ReceiveMessage{
				MessageDelivery: event.MessageDelivery{Message: message, IsDelivered: true},
			})
		}
	}

	s.publisher.Publish(event.MessagePersisted{Message: message, Delivered: reachable})
	s.log.Debug("Message relayed", "message_id", message.ID, "thread_id", message.ThreadID,
		"status", message.Status)
	return nil
}

func (s *DeliveryService) fail(ctx context.Context, connectionID string, err error) error {
	s.stats.IncrDeliveryFailures()
	summary, details := errors.Describe(err)
	s.emit(ctx, connectionID, event.MessageError{Error: summary, Details: details})
	return err
}

func (s *DeliveryService) emit(ctx context.Context, connectionID string, evt event.Outbound) {
	if err := s.emitter.Emit(ctx, connectionID, evt); err != nil {
		s.log.Warn(fmt.Sprintf("Failed to emit %s", evt.Name()),
			"connection_id", connectionID, "error", err)
	}
}
