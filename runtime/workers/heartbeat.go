package workers

import (
	"chat-relay/contract"
	"chat-relay/observability"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

var _ contract.Worker = (*HeartbeatWorker)(nil)

// HeartbeatWorker periodically logs process health next to the relay counters.
type HeartbeatWorker struct {
	log      *slog.Logger
	stats    *observability.RelayStats
	interval time.Duration
}

func NewHeartbeatWorker(log *slog.Logger, stats *observability.RelayStats, interval time.Duration) *HeartbeatWorker {
	return &HeartbeatWorker{log: log, stats: stats, interval: interval}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Info("Starting heartbeat worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.beat(p)
		}
	}
}

func (w *HeartbeatWorker) beat(p *process.Process) {
	snapshot := w.stats.Snapshot()
	attrs := []any{
		"online_users", snapshot.OnlineUsers,
		"live_connections", snapshot.LiveConnections,
		"messages_persisted", snapshot.MessagesPersisted,
		"messages_delivered", snapshot.MessagesDelivered,
		"delivery_failures", snapshot.DeliveryFailures,
		"busy_rejections", snapshot.BusyRejections,
		"queue_size", snapshot.QueueSize,
		"goroutines", snapshot.NumGoroutines,
	}

	rss, cpu, status, err := getSelfStats(p)
	if err != nil {
		w.log.Warn("Failed to collect self stats", "error", err)
	} else {
		attrs = append(attrs, "pid", p.Pid, "pid_status", status, "cpu_percent", cpu, "rss_bytes", rss)
	}
	w.log.Info("Heartbeat", attrs...)
}

// getSelfStats retrieves technical metrics (Memory, CPU, and OS Status) for the given process.
func getSelfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}

	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
