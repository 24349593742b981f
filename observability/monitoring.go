// Package observability keeps the relay counters reported by the heartbeat
// and the debug server.
package observability

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
)

var _ contract.EventSink = (*RelayStats)(nil)

// Snapshot aggregates every metric at a point in time.
type Snapshot struct {
	// --- PRESENCE ---
	OnlineUsers       int    `json:"online_users"`
	LiveConnections   int    `json:"live_connections"`
	RejectedRegisters uint64 `json:"rejected_registers"`

	// --- PIPELINE ---
	MessagesPersisted uint64 `json:"messages_persisted"`
	MessagesDelivered uint64 `json:"messages_delivered"`
	DeliveryFailures  uint64 `json:"delivery_failures"`
	BusyRejections    uint64 `json:"busy_rejections"`
	DroppedEvents     uint64 `json:"dropped_events"`
	QueueSize         int    `json:"queue_size"`
	QueueCapacity     int    `json:"queue_capacity"`

	// --- SYSTEM ---
	AllocMemMb    uint64 `json:"alloc_mem_mb"`
	NumGC         uint32 `json:"num_gc"`
	NumGoroutines int    `json:"num_goroutines"`
}

// RelayStats holds atomic counters fed by the pipeline and by the fan-out.
// Presence and queue gauges are read lazily from their owners.
type RelayStats struct {
	log *slog.Logger

	messagesPersisted uint64
	messagesDelivered uint64
	deliveryFailures  uint64
	rejectedRegisters uint64
	busyRejections    uint64
	droppedEvents     uint64

	mu       sync.RWMutex
	presence func() (users, connections int)
	queue    func() (size, capacity int)
}

func NewRelayStats(log *slog.Logger) *RelayStats {
	return &RelayStats{log: log}
}

func (s *RelayStats) WithPresence(presence func() (users, connections int)) *RelayStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence = presence
	return s
}

func (s *RelayStats) WithQueue(queue func() (size, capacity int)) *RelayStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = queue
	return s
}

// Consume counts persisted messages, as a permanent sink of the fan-out.
func (s *RelayStats) Consume(_ context.Context, e event.DomainEvent) error {
	if evt, ok := e.(event.MessagePersisted); ok {
		atomic.AddUint64(&s.messagesPersisted, 1)
		if evt.Delivered {
			atomic.AddUint64(&s.messagesDelivered, 1)
		}
	}
	return nil
}

func (s *RelayStats) IncrDeliveryFailures() {
	atomic.AddUint64(&s.deliveryFailures, 1)
}

func (s *RelayStats) IncrRejectedRegisters() {
	atomic.AddUint64(&s.rejectedRegisters, 1)
}

func (s *RelayStats) IncrBusyRejections() {
	atomic.AddUint64(&s.busyRejections, 1)
}

func (s *RelayStats) IncrDroppedEvents() {
	atomic.AddUint64(&s.droppedEvents, 1)
}

func (s *RelayStats) Snapshot() Snapshot {
	snapshot := Snapshot{
		RejectedRegisters: atomic.LoadUint64(&s.rejectedRegisters),
		MessagesPersisted: atomic.LoadUint64(&s.messagesPersisted),
		MessagesDelivered: atomic.LoadUint64(&s.messagesDelivered),
		DeliveryFailures:  atomic.LoadUint64(&s.deliveryFailures),
		BusyRejections:    atomic.LoadUint64(&s.busyRejections),
		DroppedEvents:     atomic.LoadUint64(&s.droppedEvents),
		NumGoroutines:     runtime.NumGoroutine(),
	}

	s.mu.RLock()
	if s.presence != nil {
		snapshot.OnlineUsers, snapshot.LiveConnections = s.presence()
	}
	if s.queue != nil {
		snapshot.QueueSize, snapshot.QueueCapacity = s.queue()
	}
	s.mu.RUnlock()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	snapshot.AllocMemMb = m.Alloc / 1024 / 1024
	snapshot.NumGC = m.NumGC
	return snapshot
}
