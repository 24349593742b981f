package runtime_test

import (
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/observability"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type RecordingSink struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (s *RecordingSink) Consume(_ context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *RecordingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func newOrchestrator(bufferSize int) (*runtime.Orchestrator, *observability.RelayStats) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	stats := observability.NewRelayStats(log)
	supervisor := workers.NewSupervisor(log, 10*time.Millisecond)
	return runtime.NewOrchestrator(log, supervisor, stats, 2, bufferSize, time.Second), stats
}

func Test_Orchestrator_Dispatch_Full_Queue_Returns_Busy(t *testing.T) {
	req := require.New(t)
	orchestrator, stats := newOrchestrator(1)
	cmd := chat.SendMessageCommand{Connection: "c1", Content: "hi", SenderID: "alice", ReceiverID: "bob"}

	// Given the queue holds a single command and no worker runs
	req.NoError(orchestrator.Dispatch(cmd))

	// When another command arrives
	err := orchestrator.Dispatch(cmd)

	// Then it is rejected without blocking
	req.ErrorIs(err, errors.ErrRelayBusy)
	req.Equal(uint64(1), stats.Snapshot().BusyRejections)
	size, capacity := orchestrator.QueueStats()
	req.Equal(1, size)
	req.Equal(1, capacity)
}

func Test_Orchestrator_Dispatches_Commands_To_Handler_And_Events_To_Sinks(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	handler := mocks.NewMockCommandHandler(ctrl)
	orchestrator, _ := newOrchestrator(16)
	sink := &RecordingSink{}
	orchestrator.Add(sink)

	// Given the handler publishes an event for every command
	handled := make(chan struct{}, 3)
	handler.EXPECT().Handle(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, cmd chat.Command) error {
			orchestrator.Publish(event.MessagePersisted{Message: chat.Message{ID: uuid.New()}})
			handled <- struct{}{}
			return nil
		}).Times(3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- orchestrator.Start(ctx, handler) }()

	// When three commands are dispatched
	for i := 0; i < 3; i++ {
		req.NoError(orchestrator.Dispatch(chat.SendMessageCommand{Connection: "c1"}))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-handled:
		case <-time.After(time.Second):
			req.Fail("command was not handled")
		}
	}

	// Then the fan-out forwards every event to the sink
	req.Eventually(func() bool { return sink.Len() == 3 }, time.Second, 5*time.Millisecond)

	orchestrator.Stop()
	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(time.Second):
		req.Fail("orchestrator did not stop")
	}
}

func Test_Orchestrator_Publish_Full_Queue_Drops_Event(t *testing.T) {
	req := require.New(t)
	orchestrator, stats := newOrchestrator(1)

	orchestrator.Publish(event.MessagePersisted{})
	orchestrator.Publish(event.MessagePersisted{})

	req.Equal(uint64(1), stats.Snapshot().DroppedEvents)
}
