package workers

import (
	"context"
	"log/slog"
	"reflect"
	"time"
)

type NamedChannel struct {
	Name    string
	Channel any
}

// ChannelUsage is one sample of a channel's fill level.
type ChannelUsage struct {
	Name     string
	Length   int
	Capacity int
}

func (u ChannelUsage) Percent() int {
	if u.Capacity == 0 {
		return 0
	}
	return u.Length * 100 / u.Capacity
}

// ChannelCapacityWorker periodically samples the relay queues and warns when
// one of them fills past warnPercent, ahead of busy rejections.
// Reading len(channel) and cap(channel) is non-blocking, so this won't interfere
// with other goroutines.
type ChannelCapacityWorker struct {
	log            *slog.Logger
	channels       []NamedChannel
	metricInterval time.Duration
	warnPercent    int
}

func NewChannelCapacityWorker(log *slog.Logger, channels []NamedChannel,
	metricInterval time.Duration, warnPercent int) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log:            log,
		channels:       channels,
		metricInterval: metricInterval,
		warnPercent:    warnPercent,
	}
}

func (w *ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping channel sampling")
			return nil
		case <-ticker.C:
			for _, usage := range w.Sample() {
				if usage.Percent() >= w.warnPercent {
					w.log.Warn("Queue under pressure", "channel", usage.Name,
						"length", usage.Length, "capacity", usage.Capacity)
				}
			}
		}
	}
}

// Sample reads the current length and capacity of every channel.
func (w *ChannelCapacityWorker) Sample() []ChannelUsage {
	usages := make([]ChannelUsage, 0, len(w.channels))
	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		usages = append(usages, ChannelUsage{Name: nc.Name, Length: v.Len(), Capacity: v.Cap()})
	}
	return usages
}
