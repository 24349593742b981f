package internal

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/infrastructure/websocket"
	"chat-relay/observability"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"chat-relay/sink"
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Store is everything the relay needs from a message backend.
type Store interface {
	contract.ThreadResolver
	contract.MessageStore
	contract.HistoryReader
}

// Search is the optional full-text backend.
type Search interface {
	contract.MessageSearcher
	contract.MessageIndexer
}

type RelayOptions struct {
	NumberOfWorkers      int
	BufferSize           int
	ConnectionBufferSize int
	MaxContentLength     int
	MaxFrameSize         int64
	HistoryLimit         int
	IndexBatchSize       int
	IndexFlushInterval   time.Duration
	SinkTimeout          time.Duration
	RestartInterval      time.Duration
	HeartbeatInterval    time.Duration
	QueueWarnPercent     int
	AllowedOrigins       []string
	AuthSecret           string
}

// Relay wires the registry, the dispatcher and the websocket transport
// around a store. Search is disabled when the search backend is nil.
type Relay struct {
	log          *slog.Logger
	Registry     *runtime.Registry
	Stats        *observability.RelayStats
	Gateway      *websocket.Gateway
	orchestrator *runtime.Orchestrator
	router       *services.CommandRouter
	handler      *websocket.Handler
	indexSink    *sink.IndexSink
	wg           sync.WaitGroup
}

func NewRelay(log *slog.Logger, store Store, search Search, opts RelayOptions) *Relay {
	registry := runtime.NewRegistry()
	stats := observability.NewRelayStats(log).WithPresence(func() (int, int) {
		s := registry.Stats()
		return s.Users, s.Connections
	})
	supervisor := workers.NewSupervisor(log, opts.RestartInterval)
	orchestrator := runtime.NewOrchestrator(log, supervisor, stats,
		opts.NumberOfWorkers, opts.BufferSize, opts.SinkTimeout)
	gateway := websocket.NewGateway(log, opts.ConnectionBufferSize)

	r := &Relay{
		log:          log,
		Registry:     registry,
		Stats:        stats,
		Gateway:      gateway,
		orchestrator: orchestrator,
	}

	var searcher contract.MessageSearcher
	orchestrator.Add(stats)
	if search != nil {
		searcher = search
		r.indexSink = sink.NewIndexSink(search, log, opts.IndexBatchSize,
			opts.IndexFlushInterval, opts.SinkTimeout)
		orchestrator.Add(r.indexSink)
	}
	if opts.HeartbeatInterval > 0 {
		orchestrator.AddWorkers(
			workers.NewHeartbeatWorker(log, stats, opts.HeartbeatInterval),
			workers.NewChannelCapacityWorker(log, orchestrator.Channels(),
				opts.HeartbeatInterval, opts.QueueWarnPercent),
		)
	}

	delivery := services.NewDeliveryService(log, registry, store, store, gateway,
		orchestrator, stats, opts.MaxContentLength)
	history := services.NewHistoryService(log, store, searcher, gateway, opts.HistoryLimit)
	r.router = services.NewCommandRouter(delivery, history)

	chatService := services.NewChatService(log, registry, orchestrator, gateway,
		auth.NewVerifier(opts.AuthSecret), stats)
	r.handler = websocket.NewHandler(log, gateway, chatService, opts.AllowedOrigins, opts.MaxFrameSize)
	return r
}

func (r *Relay) Handler() http.Handler {
	return r.handler.Routes()
}

// Start runs the supervised workers in the background until ctx is done
// or Shutdown is called.
func (r *Relay) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.orchestrator.Start(ctx, r.router); err != nil {
			r.log.Error("Orchestrator failed to start", "error", err)
		}
	}()
}

// Shutdown closes every connection, stops the workers and flushes the
// search index.
func (r *Relay) Shutdown(ctx context.Context) {
	r.Gateway.Shutdown()
	r.orchestrator.Stop()
	r.wg.Wait()
	if r.indexSink != nil {
		if err := r.indexSink.Flush(ctx); err != nil {
			r.log.Error("Final search index flush failed", "error", err)
		}
	}
}
