package workers

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"context"
	"fmt"
	"log/slog"
)

// Ensure *PoolUnitWorker implements the contract.Worker interface at compile time.
var _ contract.Worker = (*PoolUnitWorker)(nil)

// PoolUnitWorker takes commands off the shared dispatch queue and hands them
// to the handler one at a time. Several units run concurrently, so there is
// no ordering between commands once they are queued.
type PoolUnitWorker struct {
	commands <-chan chat.Command
	handler  contract.CommandHandler
	log      *slog.Logger
}

func NewPoolUnitWorker(
	commands <-chan chat.Command,
	handler contract.CommandHandler,
	log *slog.Logger) *PoolUnitWorker {
	return &PoolUnitWorker{
		commands: commands,
		handler:  handler,
		log:      log,
	}
}

func (w *PoolUnitWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping worker")
			return ctx.Err()
		case cmd, ok := <-w.commands:
			if !ok {
				w.log.Debug("Channel is closed")
				return nil
			}
			// Failures are reported to the connection by the handler itself
			if err := w.handler.Handle(ctx, cmd); err != nil {
				w.log.Debug(fmt.Sprintf("Command %T failed", cmd),
					"connection_id", cmd.ConnectionID(), "error", err)
			}
		}
	}
}
