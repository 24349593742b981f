package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	RelayURL string `env:"CHAT_RELAY_URL,default=ws://localhost:3001/ws"`
	UserID   string `env:"CHAT_USER_ID,required=true"`
	Token    string `env:"CHAT_TOKEN"`
	LogLevel string `env:"LOG_LEVEL,default=WARN"`
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type message struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	SenderID    string    `json:"senderId"`
	ReceiverID  string    `json:"receiverId"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	IsDelivered bool      `json:"isDelivered"`
}

func main() {
	// The main function manages the OS exit code based on run()'s return.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run connects, registers CHAT_USER_ID and then reads commands from stdin:
//
//	@bob hello there   send "hello there" to bob
//	/history bob       last messages with bob
//	/search lunch      search your messages
func run() (int, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	target, err := url.Parse(config.RelayURL)
	if err != nil {
		return exitConfig, fmt.Errorf("invalid CHAT_RELAY_URL: %w", err)
	}
	if config.Token != "" {
		query := target.Query()
		query.Set("token", config.Token)
		target.RawQuery = query.Encode()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to relay at %s: %w", config.RelayURL, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()

	if err = send(conn, "register", config.UserID); err != nil {
		return exitRuntime, err
	}

	errChan := make(chan error, 1)
	go func() { errChan <- readLoop(conn, config.UserID) }()
	go inputLoop(conn, config.UserID)

	color.Cyan.Printf(">>> Connected to %s as %s (Ctrl+C to quit)\n", config.RelayURL, config.UserID)

	select {
	case <-ctx.Done():
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return exitOK, nil
	case err = <-errChan:
		if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			return exitOK, nil
		}
		return exitRuntime, fmt.Errorf("connection error: %w", err)
	}
}

func send(conn *websocket.Conn, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.WriteJSON(envelope{Event: event, Data: raw})
}

func inputLoop(conn *websocket.Conn, userID string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		var err error
		switch {
		case strings.HasPrefix(line, "@"):
			receiver, content, _ := strings.Cut(line[1:], " ")
			err = send(conn, "sendMessage", map[string]string{
				"content": content, "senderId": userID, "receiverId": receiver,
			})
		case strings.HasPrefix(line, "/history "):
			err = send(conn, "fetchHistory", map[string]any{"peerId": strings.TrimPrefix(line, "/history ")})
		case strings.HasPrefix(line, "/search "):
			err = send(conn, "searchMessages", map[string]any{"query": strings.TrimPrefix(line, "/search ")})
		case line == "":
		default:
			color.Yellow.Println("usage: @user message | /history user | /search terms")
		}
		if err != nil {
			color.Red.Printf("send failed: %v\n", err)
			return
		}
	}
}

func readLoop(conn *websocket.Conn, userID string) error {
	for {
		var in envelope
		if err := conn.ReadJSON(&in); err != nil {
			return err
		}
		render(in, userID)
	}
}

func render(in envelope, userID string) {
	switch in.Event {
	case "registered":
		var ack struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		_ = json.Unmarshal(in.Data, &ack)
		if ack.Status == "ok" {
			color.Green.Println("registered")
			return
		}
		color.Red.Printf("registration rejected: %s\n", ack.Error)
	case "messageSaved":
		var m message
		_ = json.Unmarshal(in.Data, &m)
		state := "stored"
		if m.IsDelivered {
			state = "delivered"
		}
		color.Gray.Printf("[%s] -> %s (%s)\n", m.CreatedAt.Local().Format(time.TimeOnly), m.ReceiverID, state)
	case "receiveMessage":
		var m message
		_ = json.Unmarshal(in.Data, &m)
		printMessage(m, userID)
	case "history", "searchResults":
		var page struct {
			Messages []message `json:"messages"`
			Cursor   *string   `json:"cursor"`
		}
		_ = json.Unmarshal(in.Data, &page)
		for i := len(page.Messages) - 1; i >= 0; i-- {
			printMessage(page.Messages[i], userID)
		}
		if page.Cursor != nil {
			color.Gray.Println("(older messages available)")
		}
	case "messageError", "requestError":
		var failure struct {
			Error   string `json:"error"`
			Details string `json:"details"`
		}
		_ = json.Unmarshal(in.Data, &failure)
		color.Red.Printf("%s: %s\n", failure.Error, failure.Details)
	}
}

func printMessage(m message, userID string) {
	header := fmt.Sprintf("[%s] %s:", m.CreatedAt.Local().Format(time.TimeOnly), m.SenderID)
	if m.SenderID == userID {
		header = color.New(color.FgBlue).Render(header)
	} else {
		header = color.New(color.FgGreen, color.OpBold).Render(header)
	}
	fmt.Println(header, m.Content)
}
