package main

import (
	"chat-relay/internal"
	"chat-relay/repositories"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

const (
	exitOK = iota
	exitConfig
	exitStartup
	exitServe
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// Returning instead of exiting lets every deferred close run first.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Message store
	store, badgerDB, closeStore, err := openStore(config, log)
	if err != nil {
		return exitStartup, err
	}
	defer closeStore()

	// 3. Optional full-text search
	var search internal.Search
	if config.BlugeFilepath != "" {
		blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
		if err != nil {
			return exitStartup, fmt.Errorf("search index opening failed: %w", err)
		}
		defer func() {
			log.Info("Closing search index...")
			_ = blugeWriter.Close()
		}()
		search = repositories.NewSearchRepository(blugeWriter, log)
	}

	// 4. Relay
	relay := internal.NewRelay(log, store, search, internal.RelayOptions{
		NumberOfWorkers:      config.NumberOfWorkers,
		BufferSize:           config.BufferSize,
		ConnectionBufferSize: config.ConnectionBufferSize,
		MaxContentLength:     config.MaxContentLength,
		MaxFrameSize:         config.MaxFrameSize,
		HistoryLimit:         config.HistoryLimit,
		IndexBatchSize:       config.IndexBatchSize,
		IndexFlushInterval:   config.IndexFlushInterval,
		SinkTimeout:          config.SinkTimeout,
		RestartInterval:      config.RestartInterval,
		HeartbeatInterval:    config.HeartbeatInterval,
		QueueWarnPercent:     config.QueueWarnPercent,
		AllowedOrigins:       config.Origins(),
		AuthSecret:           config.AuthSecret,
	})

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	relay.Start(ctx)

	// 6. Debug server, badger only
	var debugServer *internal.DebugServer
	if config.DebugPort != 0 && badgerDB != nil {
		debugServer = internal.NewDebugServer(badgerDB, config.DebugPort,
			func() any { return relay.Stats.Snapshot() }, log)
		debugServer.Start()
	}

	// 7. HTTP server
	server := &http.Server{
		Addr:              config.Address(),
		Handler:           relay.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting websocket server", "address", server.Addr,
			"store", config.StoreDriver, "search", search != nil, "auth", config.AuthSecret != "")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	code := exitOK
	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case serveErr = <-errChan:
		code = exitServe
	}

	// 9. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown error", "error", err)
	}
	if debugServer != nil {
		_ = debugServer.Shutdown(shutdownCtx)
	}
	relay.Shutdown(shutdownCtx)
	log.Info("Program stopped cleanly")

	return code, serveErr
}

// openStore returns the configured backend. The badger handle is only set
// for the badger driver, the debug server reads it directly.
func openStore(config Config, log *slog.Logger) (internal.Store, *badger.DB, func(), error) {
	switch config.StoreDriver {
	case driverPostgres, driverSQLite:
		open := repositories.OpenPostgres
		if config.StoreDriver == driverSQLite {
			open = repositories.OpenSQLite
		}
		repository, err := open(config.DatabaseURL, log)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("database opening failed: %w", err)
		}
		return repository, nil, func() {
			log.Info("Closing database...")
			_ = repository.Close()
		}, nil
	default:
		db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
			WithLoggingLevel(badger.WARNING))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("database opening failed: %w", err)
		}
		return repositories.NewMessageRepository(db, log), db, func() {
			log.Info("Closing BadgerDB...")
			_ = db.Close()
		}, nil
	}
}
