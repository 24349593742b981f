package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const defaultInspectLimit = 200

type StatsProvider func() any

// DebugServer exposes the badger keyspace and the relay counters as JSON.
// It is meant for local debugging only.
type DebugServer struct {
	db     *badger.DB
	stats  StatsProvider
	log    *slog.Logger
	server *http.Server
}

func NewDebugServer(db *badger.DB, port int, stats StatsProvider, log *slog.Logger) *DebugServer {
	d := &DebugServer{db: db, stats: stats, log: log}
	d.server = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           d.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return d
}

func (d *DebugServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/inspect", d.inspect)
	mux.HandleFunc("/stats", d.statistics)
	return mux
}

func (d *DebugServer) inspect(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = "thread:"
	}
	limit := defaultInspectLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	rows, err := Scan(d.db, prefix, limit, DefaultMapper)
	if err != nil {
		d.log.Error("Inspection failed", "prefix", prefix, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"prefix": prefix, "items": rows})
}

func (d *DebugServer) statistics(w http.ResponseWriter, _ *http.Request) {
	if d.stats == nil {
		writeJSON(w, map[string]any{})
		return
	}
	writeJSON(w, d.stats())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Start serves in the background until Shutdown.
func (d *DebugServer) Start() {
	go func() {
		d.log.Info("Debug server listening", "address", d.server.Addr)
		if err := d.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.Error("Debug server failed", "error", err)
		}
	}()
}

func (d *DebugServer) Shutdown(ctx context.Context) error {
	return d.server.Shutdown(ctx)
}
