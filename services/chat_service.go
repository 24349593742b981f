package services

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	"fmt"
	"log/slog"
)

// IChatService is the surface the transport calls for every inbound event.
type IChatService interface {
	Register(ctx context.Context, cmd chat.RegisterCommand) error
	Disconnect(ctx context.Context, connectionID string)
	SendMessage(ctx context.Context, cmd chat.SendMessageCommand) error
	FetchHistory(ctx context.Context, cmd chat.FetchHistoryCommand) error
	SearchMessages(ctx context.Context, cmd chat.SearchMessagesCommand) error
}

var _ IChatService = (*ChatService)(nil)

// ChatService handles the connection lifecycle inline and hands store-bound
// requests to the dispatcher.
type ChatService struct {
	log        *slog.Logger
	registry   contract.IRegistry
	dispatcher contract.Dispatcher
	emitter    contract.Emitter
	verifier   *auth.Verifier
	stats      *observability.RelayStats
}

func NewChatService(
	log *slog.Logger,
	registry contract.IRegistry,
	dispatcher contract.Dispatcher,
	emitter contract.Emitter,
	verifier *auth.Verifier,
	stats *observability.RelayStats) *ChatService {
	return &ChatService{
		log:        log,
		registry:   registry,
		dispatcher: dispatcher,
		emitter:    emitter,
		verifier:   verifier,
		stats:      stats,
	}
}

// Register binds the connection to the claimed identity and acknowledges it.
// An empty identity is only logged.
func (s *ChatService) Register(ctx context.Context, cmd chat.RegisterCommand) error {
	if cmd.UserID == "" {
		s.log.Warn("Register without identity ignored", "connection_id", cmd.Connection)
		return errors.ErrInvalidIdentity
	}

	if err := s.verifier.Authorize(cmd.UserID, cmd.Token); err != nil {
		return s.reject(ctx, cmd, err)
	}

	err := s.registry.Register(cmd.UserID, cmd.Connection)
	switch {
	case errors.Is(err, errors.ErrInvalidIdentity):
		s.log.Warn("Register with invalid identity ignored", "connection_id", cmd.Connection)
		return err
	case err != nil:
		return s.reject(ctx, cmd, err)
	}

	s.log.Info("User registered", "user_id", cmd.UserID, "connection_id", cmd.Connection)
	s.emit(ctx, cmd.Connection, event.Registered{
		Status:       event.RegistrationOK,
		ConnectionID: cmd.Connection,
	})
	return nil
}

func (s *ChatService) reject(ctx context.Context, cmd chat.RegisterCommand, err error) error {
	s.stats.IncrRejectedRegisters()
	s.log.Warn("Registration rejected", "user_id", cmd.UserID,
		"connection_id", cmd.Connection, "error", err)
	summary, _ := errors.Describe(err)
	s.emit(ctx, cmd.Connection, event.Registered{
		Status:       event.RegistrationRejected,
		ConnectionID: cmd.Connection,
		Error:        summary,
	})
	return err
}

func (s *ChatService) Disconnect(_ context.Context, connectionID string) {
	if userID, ok := s.registry.Unregister(connectionID); ok {
		s.log.Info("User disconnected", "user_id", userID, "connection_id", connectionID)
		return
	}
	s.log.Debug("Unregistered connection closed", "connection_id", connectionID)
}

// SendMessage queues the message for the delivery pipeline.
// When authentication is enabled the sender must be the connection's user.
func (s *ChatService) SendMessage(ctx context.Context, cmd chat.SendMessageCommand) error {
	if s.verifier.Enabled() {
		owner, ok := s.registry.OwnerOf(cmd.Connection)
		if !ok || owner != cmd.SenderID {
			err := fmt.Errorf("%w: sender %q is not the registered user", errors.ErrUnauthorized, cmd.SenderID)
			return s.messageError(ctx, cmd.Connection, err)
		}
	}
	if err := s.dispatcher.Dispatch(cmd); err != nil {
		return s.messageError(ctx, cmd.Connection, err)
	}
	return nil
}

// FetchHistory reads the thread between the connection's user and cmd.PeerID.
func (s *ChatService) FetchHistory(ctx context.Context, cmd chat.FetchHistoryCommand) error {
	userID, ok := s.registry.OwnerOf(cmd.Connection)
	if !ok {
		return s.requestError(ctx, cmd.Connection, event.FetchHistoryName, errors.ErrNotRegistered)
	}
	cmd.UserID = userID
	if err := s.dispatcher.Dispatch(cmd); err != nil {
		return s.requestError(ctx, cmd.Connection, event.FetchHistoryName, err)
	}
	return nil
}

// SearchMessages searches the messages the connection's user took part in.
func (s *ChatService) SearchMessages(ctx context.Context, cmd chat.SearchMessagesCommand) error {
	userID, ok := s.registry.OwnerOf(cmd.Connection)
	if !ok {
		return s.requestError(ctx, cmd.Connection, event.SearchMessagesName, errors.ErrNotRegistered)
	}
	cmd.UserID = userID
	if err := s.dispatcher.Dispatch(cmd); err != nil {
		return s.requestError(ctx, cmd.Connection, event.SearchMessagesName, err)
	}
	return nil
}

func (s *ChatService) messageError(ctx context.Context, connectionID string, err error) error {
	summary, details := errors.Describe(err)
	s.emit(ctx, connectionID, event.MessageError{Error: summary, Details: details})
	return err
}

func (s *ChatService) requestError(ctx context.Context, connectionID, request string, err error) error {
	summary, details := errors.Describe(err)
	s.emit(ctx, connectionID, event.RequestError{Request: request, Error: summary, Details: details})
	return err
}

func (s *ChatService) emit(ctx context.Context, connectionID string, evt event.Outbound) {
	if err := s.emitter.Emit(ctx, connectionID, evt); err != nil {
		s.log.Warn(fmt.Sprintf("Failed to emit %s", evt.Name()),
			"connection_id", connectionID, "error", err)
	}
}
