package services

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// HistoryService answers the read-side requests of a registered connection.
type HistoryService struct {
	log      *slog.Logger
	reader   contract.HistoryReader
	searcher contract.MessageSearcher
	emitter  contract.Emitter
	maxLimit int
}

// NewHistoryService accepts a nil searcher when full-text search is disabled.
func NewHistoryService(log *slog.Logger, reader contract.HistoryReader,
	searcher contract.MessageSearcher, emitter contract.Emitter, maxLimit int) *HistoryService {
	return &HistoryService{
		log:      log,
		reader:   reader,
		searcher: searcher,
		emitter:  emitter,
		maxLimit: maxLimit,
	}
}

func (s *HistoryService) FetchHistory(ctx context.Context, cmd chat.FetchHistoryCommand) error {
	if err := validate.Struct(cmd); err != nil {
		return s.fail(ctx, cmd.Connection, event.FetchHistoryName, fmt.Errorf("%w: %w", errors.ErrValidation, err))
	}

	thread, messages, cursor, err := s.reader.GetThreadMessages(ctx, cmd.UserID, cmd.PeerID,
		cmd.Cursor, s.limit(cmd.Limit))
	if err != nil {
		s.log.Error("History read failed", "user_id", cmd.UserID, "peer_id", cmd.PeerID, "error", err)
		return s.fail(ctx, cmd.Connection, event.FetchHistoryName, err)
	}

	history := event.History{PeerID: cmd.PeerID, Messages: messages, Cursor: cursor}
	if thread.ID != uuid.Nil {
		history.ThreadID = thread.ID.String()
	}
	return s.emitter.Emit(ctx, cmd.Connection, history)
}

func (s *HistoryService) Search(ctx context.Context, cmd chat.SearchMessagesCommand) error {
	if s.searcher == nil {
		return s.fail(ctx, cmd.Connection, event.SearchMessagesName, errors.ErrSearchDisabled)
	}
	if err := validate.Struct(cmd); err != nil {
		return s.fail(ctx, cmd.Connection, event.SearchMessagesName, fmt.Errorf("%w: %w", errors.ErrValidation, err))
	}

	messages, err := s.searcher.Search(ctx, cmd.UserID, cmd.Query, s.limit(cmd.Limit))
	if err != nil {
		s.log.Error("Search failed", "user_id", cmd.UserID, "error", err)
		return s.fail(ctx, cmd.Connection, event.SearchMessagesName, err)
	}
	return s.emitter.Emit(ctx, cmd.Connection, event.SearchResults{Query: cmd.Query, Messages: messages})
}

func (s *HistoryService) limit(requested int) int {
	if requested <= 0 || requested > s.maxLimit {
		return s.maxLimit
	}
	return requested
}

func (s *HistoryService) fail(ctx context.Context, connectionID, request string, err error) error {
	summary, details := errors.Describe(err)
	if emitErr := s.emitter.Emit(ctx, connectionID, event.RequestError{
		Request: request, Error: summary, Details: details,
	}); emitErr != nil {
		s.log.Warn("Failed to emit request error", "connection_id", connectionID, "error", emitErr)
	}
	return err
}
