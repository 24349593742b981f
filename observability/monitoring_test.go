package observability

import (
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"context"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestRelayStats_Counts_Persisted_Messages(t *testing.T) {
	req := require.New(t)
	stats := NewRelayStats(logs.GetLoggerFromLevel(slog.LevelDebug))

	// Given one delivered and one stored-only message
	req.NoError(stats.Consume(context.Background(), event.MessagePersisted{Message: chat.Message{}, Delivered: true}))
	req.NoError(stats.Consume(context.Background(), event.MessagePersisted{Message: chat.Message{}, Delivered: false}))
	stats.IncrDeliveryFailures()

	snapshot := stats.Snapshot()

	req.Equal(uint64(2), snapshot.MessagesPersisted)
	req.Equal(uint64(1), snapshot.MessagesDelivered)
	req.Equal(uint64(1), snapshot.DeliveryFailures)
}

func TestRelayStats_Reads_Gauges_From_Owners(t *testing.T) {
	req := require.New(t)
	stats := NewRelayStats(logs.GetLoggerFromLevel(slog.LevelDebug)).
		WithPresence(func() (int, int) { return 2, 3 }).
		WithQueue(func() (int, int) { return 5, 1024 })

	snapshot := stats.Snapshot()

	req.Equal(2, snapshot.OnlineUsers)
	req.Equal(3, snapshot.LiveConnections)
	req.Equal(5, snapshot.QueueSize)
	req.Equal(1024, snapshot.QueueCapacity)
	req.Positive(snapshot.NumGoroutines)
}
