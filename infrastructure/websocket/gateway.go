// Package websocket is the transport of the relay: it upgrades HTTP
// requests, decodes inbound envelopes for the chat service and delivers
// outbound events to connections by identifier.
package websocket

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

var _ contract.Emitter = (*Gateway)(nil)

// Envelope is the wire format of every frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string         `json:"event"`
	Data  event.Outbound `json:"data"`
}

// Gateway owns the live connections, keyed by connection id.
type Gateway struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	bufferSize  int
	log         *slog.Logger
}

func NewGateway(log *slog.Logger, bufferSize int) *Gateway {
	return &Gateway{
		connections: make(map[string]*Connection),
		bufferSize:  max(bufferSize, 1),
		log:         log,
	}
}

// Attach gives the socket a fresh connection id and starts its write pump.
func (g *Gateway) Attach(conn *ws.Conn) *Connection {
	connection := newConnection(uuid.NewString(), conn, g.bufferSize, g.log)

	g.mu.Lock()
	g.connections[connection.id] = connection
	count := len(g.connections)
	g.mu.Unlock()

	go connection.writePump()
	g.log.Debug("Connection attached", "connection_id", connection.id, "connections", count)
	return connection
}

// Detach forgets the connection and closes it. Unknown ids are ignored.
func (g *Gateway) Detach(connectionID string) {
	g.mu.Lock()
	connection, ok := g.connections[connectionID]
	delete(g.connections, connectionID)
	g.mu.Unlock()

	if ok {
		connection.Close()
	}
}

// Emit queues evt for the connection. A closed or unknown connection is
// silently skipped. A connection whose buffer is full is closed: it is
// too slow to keep up.
func (g *Gateway) Emit(_ context.Context, connectionID string, evt event.Outbound) error {
	g.mu.RLock()
	connection, ok := g.connections[connectionID]
	g.mu.RUnlock()
	if !ok {
		g.log.Debug("Dropping event for unknown connection",
			"connection_id", connectionID, "event", evt.Name())
		return nil
	}

	frame, err := json.Marshal(outbound{Event: evt.Name(), Data: evt})
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", evt.Name(), err)
	}

	if !connection.enqueue(frame) {
		select {
		case <-connection.done:
			return nil
		default:
		}
		g.log.Warn("Send buffer full, closing connection",
			"connection_id", connectionID, "event", evt.Name())
		g.Detach(connectionID)
		return fmt.Errorf("send buffer full for connection %s", connectionID)
	}
	return nil
}

func (g *Gateway) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.connections)
}

// Shutdown closes every connection. Read loops then exit and disconnect
// their users.
func (g *Gateway) Shutdown() {
	g.mu.Lock()
	connections := make([]*Connection, 0, len(g.connections))
	for _, connection := range g.connections {
		connections = append(connections, connection)
	}
	g.connections = make(map[string]*Connection)
	g.mu.Unlock()

	for _, connection := range connections {
		connection.Close()
	}
	g.log.Info("Closed websocket connections", "count", len(connections))
}
