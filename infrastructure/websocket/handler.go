package websocket

import (
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/services"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	ws "github.com/gorilla/websocket"
)

type sendMessagePayload struct {
	Content    string `json:"content"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

type fetchHistoryPayload struct {
	PeerID string  `json:"peerId"`
	Cursor *string `json:"cursor"`
	Limit  int     `json:"limit"`
}

type searchMessagesPayload struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// Handler upgrades /ws requests and runs one read loop per connection.
// Register and disconnect are handled inline in that loop so a connection
// can never be unregistered before its own registration.
type Handler struct {
	log          *slog.Logger
	gateway      *Gateway
	service      services.IChatService
	upgrader     ws.Upgrader
	maxFrameSize int64
}

func NewHandler(log *slog.Logger, gateway *Gateway, service services.IChatService,
	allowedOrigins []string, maxFrameSize int64) *Handler {
	policy := newOriginPolicy(allowedOrigins, log)
	return &Handler{
		log:     log,
		gateway: gateway,
		service: service,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.check,
		},
		maxFrameSize: maxFrameSize,
	}
}

// Routes returns the public mux: the websocket endpoint and a liveness probe.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	mux.HandleFunc("/healthz", h.Health)
	return mux
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "chat-relay is running, %d connections\n", h.gateway.Count())
}

func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	connection := h.gateway.Attach(conn)
	token := r.URL.Query().Get("token")
	h.readLoop(context.WithoutCancel(r.Context()), connection, token)
}

func (h *Handler) readLoop(ctx context.Context, connection *Connection, token string) {
	log := h.log.With("connection_id", connection.id)
	defer func() {
		h.gateway.Detach(connection.id)
		h.service.Disconnect(ctx, connection.id)
	}()

	conn := connection.conn
	if h.maxFrameSize > 0 {
		conn.SetReadLimit(h.maxFrameSize)
	}
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, frame, err := conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				log.Warn("Websocket read failed", "error", err)
			} else {
				log.Debug("Websocket closed", "error", err)
			}
			return
		}
		if messageType != ws.TextMessage {
			continue
		}

		var envelope Envelope
		if err = json.Unmarshal(frame, &envelope); err != nil {
			log.Debug("Ignoring malformed frame", "error", err)
			continue
		}
		h.route(ctx, connection.id, token, envelope)
	}
}

// route turns an envelope into a service call. Service errors are already
// reported to the client, they are only logged here.
func (h *Handler) route(ctx context.Context, connectionID, token string, envelope Envelope) {
	var err error
	switch envelope.Event {
	case event.RegisterName:
		err = h.service.Register(ctx, chat.RegisterCommand{
			Connection: connectionID,
			UserID:     decodeUserID(envelope.Data),
			Token:      token,
		})
	case event.SendMessageName:
		var payload sendMessagePayload
		if err = json.Unmarshal(envelope.Data, &payload); err != nil {
			h.reply(ctx, connectionID, messageError(err))
			return
		}
		err = h.service.SendMessage(ctx, chat.SendMessageCommand{
			Connection: connectionID,
			Content:    payload.Content,
			SenderID:   payload.SenderID,
			ReceiverID: payload.ReceiverID,
		})
	case event.FetchHistoryName:
		var payload fetchHistoryPayload
		if err = json.Unmarshal(envelope.Data, &payload); err != nil {
			h.reply(ctx, connectionID, requestError(event.FetchHistoryName, err))
			return
		}
		err = h.service.FetchHistory(ctx, chat.FetchHistoryCommand{
			Connection: connectionID,
			PeerID:     payload.PeerID,
			Cursor:     payload.Cursor,
			Limit:      payload.Limit,
		})
	case event.SearchMessagesName:
		var payload searchMessagesPayload
		if err = json.Unmarshal(envelope.Data, &payload); err != nil {
			h.reply(ctx, connectionID, requestError(event.SearchMessagesName, err))
			return
		}
		err = h.service.SearchMessages(ctx, chat.SearchMessagesCommand{
			Connection: connectionID,
			Query:      payload.Query,
			Limit:      payload.Limit,
		})
	default:
		h.log.Debug("Ignoring unknown event", "connection_id", connectionID, "event", envelope.Event)
		return
	}
	if err != nil {
		h.log.Debug("Request failed", "connection_id", connectionID,
			"event", envelope.Event, "error", err)
	}
}

func (h *Handler) reply(ctx context.Context, connectionID string, evt event.Outbound) {
	if err := h.gateway.Emit(ctx, connectionID, evt); err != nil {
		h.log.Warn("Failed to reply", "connection_id", connectionID, "error", err)
	}
}

// decodeUserID accepts both a bare JSON string and {"userId": "..."}.
// Anything else yields an empty identity.
func decodeUserID(data json.RawMessage) string {
	var userID string
	if err := json.Unmarshal(data, &userID); err == nil {
		return userID
	}
	var payload struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		return payload.UserID
	}
	return ""
}

func messageError(err error) event.MessageError {
	summary, details := errors.Describe(fmt.Errorf("%w: %w", errors.ErrValidation, err))
	return event.MessageError{Error: summary, Details: details}
}

func requestError(request string, err error) event.RequestError {
	summary, details := errors.Describe(fmt.Errorf("%w: %w", errors.ErrValidation, err))
	return event.RequestError{Request: request, Error: summary, Details: details}
}
