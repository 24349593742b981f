// Package runtime handles presence, command dispatch and event propagation.
// It orchestrates the relay without containing business logic or domain rules.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/runtime/workers"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	_ contract.Dispatcher = (*Orchestrator)(nil)
	_ contract.Publisher  = (*Orchestrator)(nil)
)

// Orchestrator owns the bounded command queue served by the worker pool and
// the domain event queue served by the fan-out.
// Neither Dispatch nor Publish ever blocks the caller.
type Orchestrator struct {
	mu             sync.Mutex
	log            *slog.Logger
	numWorkers     int
	supervisor     contract.ISupervisor
	commands       chan chat.Command
	domainEvents   chan event.DomainEvent
	permanentSinks []contract.EventSink
	extraWorkers   []contract.Worker
	sinkTimeout    time.Duration
	stats          *observability.RelayStats
	started        bool
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor,
	stats *observability.RelayStats, numWorkers, bufferSize int, sinkTimeout time.Duration) *Orchestrator {
	o := &Orchestrator{
		log:          log,
		numWorkers:   max(numWorkers, 1),
		supervisor:   supervisor,
		commands:     make(chan chat.Command, bufferSize),
		domainEvents: make(chan event.DomainEvent, bufferSize),
		sinkTimeout:  sinkTimeout,
		stats:        stats,
	}
	stats.WithQueue(o.QueueStats)
	return o
}

// Add registers permanent sinks fed by the fan-out. Must be called before Start.
func (o *Orchestrator) Add(sinks ...contract.EventSink) *Orchestrator {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.permanentSinks = append(o.permanentSinks, sinks...)
	return o
}

// AddWorkers registers side workers (heartbeat) supervised with the pool.
func (o *Orchestrator) AddWorkers(ws ...contract.Worker) *Orchestrator {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.extraWorkers = append(o.extraWorkers, ws...)
	return o
}

// Dispatch queues a command for the worker pool.
// It returns ErrRelayBusy instead of waiting when the queue is full.
func (o *Orchestrator) Dispatch(cmd chat.Command) error {
	select {
	case o.commands <- cmd:
		return nil
	default:
		o.stats.IncrBusyRejections()
		o.log.Warn(fmt.Sprintf("Command channel full, rejecting %T", cmd),
			"connection_id", cmd.ConnectionID())
		return errors.ErrRelayBusy
	}
}

// Publish hands a domain event to the fan-out, best effort.
func (o *Orchestrator) Publish(evt event.DomainEvent) {
	select {
	case o.domainEvents <- evt:
	default:
		o.stats.IncrDroppedEvents()
		o.log.Debug("Domain event channel full, dropping event", "thread_id", evt.ThreadID())
	}
}

func (o *Orchestrator) QueueStats() (int, int) {
	return len(o.commands), cap(o.commands)
}

// Channels exposes both queues to the capacity sampler.
func (o *Orchestrator) Channels() []workers.NamedChannel {
	return []workers.NamedChannel{
		{Name: "commands", Channel: o.commands},
		{Name: "domain_events", Channel: o.domainEvents},
	}
}

// Start registers the pool, the fan-out and the side workers to the
// supervisor, then blocks until the supervisor stops.
func (o *Orchestrator) Start(ctx context.Context, handler contract.CommandHandler) error {
	poolWorkers := o.preparePoolWorkers(handler)

	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already started")
	}
	o.started = true
	fanout := workers.NewEventFanout(o.log, o.domainEvents, o.sinkTimeout, o.permanentSinks...)
	o.supervisor.Add(fanout)
	o.supervisor.Add(poolWorkers...)
	o.supervisor.Add(o.extraWorkers...)
	sinks := len(o.permanentSinks)
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers",
		"pool_workers", len(poolWorkers), "sinks", sinks)
	o.supervisor.Run(ctx)
	return nil
}

func (o *Orchestrator) preparePoolWorkers(handler contract.CommandHandler) []contract.Worker {
	res := make([]contract.Worker, 0, o.numWorkers)
	for i := 0; i < o.numWorkers; i++ {
		res = append(res, workers.NewPoolUnitWorker(o.commands, handler, o.log))
	}
	return res
}

// Stop cancels the supervised workers. Queued commands are dropped.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}
