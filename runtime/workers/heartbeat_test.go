package workers

import (
	"chat-relay/observability"
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/shirou/gopsutil/process"
	"github.com/stretchr/testify/require"
)

func TestHeartbeatWorker_Stops_With_Context(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	stats := observability.NewRelayStats(log).WithPresence(func() (int, int) { return 1, 2 })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := NewHeartbeatWorker(log, stats, 5*time.Millisecond).Run(ctx)
	req.ErrorIs(err, context.DeadlineExceeded)
}

func TestGetSelfStats(t *testing.T) {
	req := require.New(t)
	p, err := process.NewProcess(int32(os.Getpid()))
	req.NoError(err)

	rss, _, _, err := getSelfStats(p)
	req.NoError(err)
	req.Positive(rss)
}
