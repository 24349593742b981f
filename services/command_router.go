package services

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"context"
	"fmt"
)

var _ contract.CommandHandler = (*CommandRouter)(nil)

// CommandRouter is the handler run by the pool workers for every queued command.
type CommandRouter struct {
	delivery *DeliveryService
	history  *HistoryService
}

func NewCommandRouter(delivery *DeliveryService, history *HistoryService) *CommandRouter {
	return &CommandRouter{delivery: delivery, history: history}
}

func (r *CommandRouter) Handle(ctx context.Context, cmd chat.Command) error {
	switch c := cmd.(type) {
	case chat.SendMessageCommand:
		return r.delivery.Send(ctx, c)
	case chat.FetchHistoryCommand:
		return r.history.FetchHistory(ctx, c)
	case chat.SearchMessagesCommand:
		return r.history.Search(ctx, c)
	default:
		return fmt.Errorf("%w: %T", errors.ErrUnknownCommand, cmd)
	}
}
