package websocket

import (
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// attachedPair starts a server that attaches every socket to the gateway
// and returns the client side plus the server-side connection id.
func attachedPair(t *testing.T, gateway *Gateway) (*ws.Conn, string) {
	t.Helper()
	ids := make(chan string, 1)
	upgrader := ws.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ids <- gateway.Attach(conn).ID()
	}))
	t.Cleanup(server.Close)

	client, _, err := ws.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case id := <-ids:
		return client, id
	case <-time.After(2 * time.Second):
		t.Fatal("connection was never attached")
		return nil, ""
	}
}

func TestGateway_Emit_Writes_Envelope(t *testing.T) {
	req := require.New(t)
	gateway := NewGateway(logs.GetLoggerFromLevel(slog.LevelDebug), 8)
	client, connectionID := attachedPair(t, gateway)

	message := chat.Message{
		ID: uuid.New(), Content: "hi", SenderID: "alice", ReceiverID: "bob",
		ThreadID: uuid.New(), Status: chat.StatusDelivered, CreatedAt: time.Now().UTC(),
	}
	err := gateway.Emit(context.Background(), connectionID, event.ReceiveMessage{
		MessageDelivery: event.MessageDelivery{Message: message, IsDelivered: true},
	})
	req.NoError(err)

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var envelope Envelope
	req.NoError(client.ReadJSON(&envelope))
	req.Equal(event.ReceiveMessageName, envelope.Event)

	var data map[string]any
	req.NoError(json.Unmarshal(envelope.Data, &data))
	req.Equal(message.ID.String(), data["id"])
	req.Equal("hi", data["content"])
	req.Equal("alice", data["senderId"])
	req.Equal("bob", data["receiverId"])
	req.Equal(true, data["isDelivered"])
	req.Equal("delivered", data["status"])
}

func TestGateway_Emit_To_Unknown_Connection_Is_Not_An_Error(t *testing.T) {
	gateway := NewGateway(logs.GetLoggerFromLevel(slog.LevelDebug), 8)

	err := gateway.Emit(context.Background(), "ghost", event.MessageError{Error: "Invalid message"})

	require.NoError(t, err)
}

func TestGateway_Detach_Closes_Socket(t *testing.T) {
	req := require.New(t)
	gateway := NewGateway(logs.GetLoggerFromLevel(slog.LevelDebug), 8)
	client, connectionID := attachedPair(t, gateway)
	req.Equal(1, gateway.Count())

	gateway.Detach(connectionID)
	req.Zero(gateway.Count())

	// The client sees a close frame
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := client.ReadMessage()
	req.True(ws.IsCloseError(err, ws.CloseNormalClosure), "unexpected error %v", err)

	// Emitting after the detach is silently skipped
	req.NoError(gateway.Emit(context.Background(), connectionID, event.MessageError{Error: "late"}))
}

func TestGateway_Shutdown_Closes_All(t *testing.T) {
	gateway := NewGateway(logs.GetLoggerFromLevel(slog.LevelDebug), 8)
	attachedPair(t, gateway)
	attachedPair(t, gateway)
	require.Equal(t, 2, gateway.Count())

	gateway.Shutdown()

	require.Zero(t, gateway.Count())
}

func TestOriginPolicy(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	tests := []struct {
		name     string
		allowed  []string
		origin   string
		expected bool
	}{
		{"No origin header", []string{"https://chat.example.com"}, "", true},
		{"Wildcard", []string{"*"}, "https://anything.io", true},
		{"Listed origin, case insensitive", []string{" https://Chat.Example.com "}, "https://chat.example.COM", true},
		{"Unlisted origin", []string{"https://chat.example.com"}, "https://evil.example.com", false},
		{"Invalid configuration entry is ignored", []string{"not-an-origin"}, "https://chat.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := newOriginPolicy(tt.allowed, log)
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			require.Equal(t, tt.expected, policy.check(r))
		})
	}
}

func TestDecodeUserID(t *testing.T) {
	require.Equal(t, "alice", decodeUserID(json.RawMessage(`"alice"`)))
	require.Equal(t, "bob", decodeUserID(json.RawMessage(`{"userId":"bob"}`)))
	require.Empty(t, decodeUserID(json.RawMessage(`42`)))
	require.Empty(t, decodeUserID(nil))
}
