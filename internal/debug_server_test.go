package internal

import (
	"chat-relay/domain/chat"
	"chat-relay/repositories"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func seededDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repository := repositories.NewMessageRepository(db, logs.GetLoggerFromLevel(slog.LevelDebug))
	ctx := context.Background()
	thread, err := repository.ResolveOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = repository.Persist(ctx, chat.PersistCommand{
		Content: "hello bob", SenderID: "alice", ReceiverID: "bob",
		Thread: thread, Status: chat.StatusSent,
	})
	require.NoError(t, err)
	return db
}

func TestDebugServer_Inspect(t *testing.T) {
	req := require.New(t)
	server := NewDebugServer(seededDB(t), 0, nil, logs.GetLoggerFromLevel(slog.LevelDebug))

	tests := []struct {
		prefix string
		kind   string
		detail string
	}{
		{"thread:", "THREAD", "owner alice"},
		{"msg:", "MESSAGE", "alice -> bob [sent] hello bob"},
		{"idx:", "INDEX", "pair:5:alice:3:bob"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inspect?prefix="+tt.prefix, nil))
		req.Equal(http.StatusOK, rec.Code)

		var body struct {
			Prefix string       `json:"prefix"`
			Items  []InspectRow `json:"items"`
		}
		req.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
		req.Len(body.Items, 1, tt.prefix)
		req.Equal(tt.kind, body.Items[0].Type)
		req.Contains(body.Items[0].Detail, tt.detail)
	}
}

func TestDebugServer_Inspect_Rejects_Bad_Limit(t *testing.T) {
	server := NewDebugServer(seededDB(t), 0, nil, logs.GetLoggerFromLevel(slog.LevelDebug))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inspect?limit=-1", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDebugServer_Stats(t *testing.T) {
	req := require.New(t)
	server := NewDebugServer(seededDB(t), 0, func() any {
		return map[string]int{"online_users": 3}
	}, logs.GetLoggerFromLevel(slog.LevelDebug))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	req.Equal(http.StatusOK, rec.Code)
	req.JSONEq(`{"online_users":3}`, rec.Body.String())
}
