package main

import (
	"chat-relay/internal"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Config is the subset of the relay configuration the viewer needs.
type Config struct {
	BadgerFilepath string `env:"BADGER_FILEPATH,default=./data/badger"`
	DebugPort      int    `env:"DEBUG_PORT,default=6060"`
	LogLevel       string `env:"LOG_LEVEL,default=INFO"`
}

// The viewer serves /inspect over a store that a relay may be holding open.
func main() {
	// 1. Load config
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	// 2. Open Badger in Read-Only mode
	// Note: BypassLockGuard allows opening if another process (the relay) holds the lock
	opts := badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// 3. Start Debug Server Only
	// No relay runs here, stats only describe the viewer itself
	startedAt := time.Now()
	viewerStats := func() any {
		return map[string]any{
			"mode":    "viewer (read-only)",
			"path":    config.BadgerFilepath,
			"started": startedAt.Format(time.RFC822),
		}
	}
	server := internal.NewDebugServer(db, config.DebugPort, viewerStats, logger)
	server.Start()
	logger.Info("Viewer started", "url", fmt.Sprintf("http://127.0.0.1:%d/inspect", config.DebugPort))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
