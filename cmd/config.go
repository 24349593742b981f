package main

import (
	"fmt"
	"strings"
	"time"
)

const (
	driverBadger   = "badger"
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"
)

type Config struct {
	Host                 string        `env:"HOST,default=0.0.0.0"`
	Port                 int           `env:"PORT,default=3001"`
	AllowedOrigins       string        `env:"ALLOWED_ORIGINS,default=*"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	StoreDriver          string        `env:"STORE_DRIVER,default=badger"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,default=./data/badger"`
	DatabaseURL          string        `env:"DATABASE_URL"`
	BlugeFilepath        string        `env:"BLUGE_FILEPATH"`
	NumberOfWorkers      int           `env:"NUMBER_OF_WORKERS,default=4"`
	BufferSize           int           `env:"BUFFER_SIZE,default=1024"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	MaxContentLength     int           `env:"MAX_CONTENT_LENGTH,default=4096"`
	MaxFrameSize         int64         `env:"MAX_FRAME_SIZE,default=16384"`
	HistoryLimit         int           `env:"HISTORY_LIMIT,default=50"`
	IndexBatchSize       int           `env:"INDEX_BATCH_SIZE,default=100"`
	IndexFlushInterval   time.Duration `env:"INDEX_FLUSH_INTERVAL,default=1s"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=2s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	HeartbeatInterval    time.Duration `env:"HEARTBEAT_INTERVAL,default=30s"`
	QueueWarnPercent     int           `env:"QUEUE_WARN_PERCENT,default=80"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	AuthSecret           string        `env:"AUTH_SECRET"`
	DebugPort            int           `env:"DEBUG_PORT"`
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case driverBadger:
		if c.BadgerFilepath == "" {
			return fmt.Errorf("BADGER_FILEPATH is required with the %s driver", driverBadger)
		}
	case driverPostgres, driverSQLite:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required with the %s driver", c.StoreDriver)
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.NumberOfWorkers <= 0 || c.BufferSize <= 0 {
		return fmt.Errorf("NUMBER_OF_WORKERS and BUFFER_SIZE must be positive")
	}
	if c.DebugPort != 0 && c.StoreDriver != driverBadger {
		return fmt.Errorf("DEBUG_PORT is only available with the %s driver", driverBadger)
	}
	return nil
}

func (c Config) Origins() []string {
	return strings.Split(c.AllowedOrigins, ",")
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
