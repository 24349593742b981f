package sink

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var _ contract.EventSink = (*IndexSink)(nil)

// IndexSink buffers persisted messages and hands them to the search index
// in batches. A batch is flushed when it reaches maxBatchSize or when
// flushTimeout elapsed since its first message, whichever comes first.
type IndexSink struct {
	mu           sync.Mutex
	timer        *time.Timer
	indexer      contract.MessageIndexer
	log          *slog.Logger
	messages     []chat.Message
	maxBatchSize int
	flushTimeout time.Duration
	indexTimeout time.Duration
}

func NewIndexSink(
	indexer contract.MessageIndexer,
	log *slog.Logger,
	maxBatchSize int,
	flushTimeout time.Duration,
	indexTimeout time.Duration,
) *IndexSink {
	return &IndexSink{
		indexer:      indexer,
		log:          log,
		maxBatchSize: max(maxBatchSize, 1),
		flushTimeout: flushTimeout,
		indexTimeout: indexTimeout,
	}
}

// Consume implements the EventSink interface. Only MessagePersisted is indexed.
func (s *IndexSink) Consume(ctx context.Context, e event.DomainEvent) error {
	evt, ok := e.(event.MessagePersisted)
	if !ok {
		return nil
	}

	s.mu.Lock()
	s.messages = append(s.messages, evt.Message)

	// The timer flush outlives the caller's context, it gets its own
	if len(s.messages) == 1 && s.timer == nil {
		s.timer = time.AfterFunc(s.flushTimeout, func() {
			if err := s.Flush(context.Background()); err != nil {
				s.log.Error("Timeout flush of the search index failed", "error", err)
			}
		})
	}

	isFull := len(s.messages) >= s.maxBatchSize
	s.mu.Unlock()

	if isFull {
		return s.Flush(ctx)
	}
	return nil
}

// Flush indexes whatever is buffered. It is also called on shutdown.
func (s *IndexSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if len(s.messages) == 0 {
		s.mu.Unlock()
		return nil
	}
	batch := s.messages
	s.messages = make([]chat.Message, 0, s.maxBatchSize)
	s.mu.Unlock()

	indexCtx, cancel := context.WithTimeout(ctx, s.indexTimeout)
	defer cancel()

	if err := s.indexer.IndexBatch(indexCtx, batch); err != nil {
		return fmt.Errorf("failed to index %d messages: %w", len(batch), err)
	}
	s.log.Debug("Search index batch flushed", "count", len(batch))
	return nil
}
