package e2e

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

const readTimeout = 5 * time.Second

type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// BaseWSSuite drives a relay through real websocket connections.
// RelayURL is loaded from the environment unless the embedding suite sets it.
type BaseWSSuite struct {
	suite.Suite
	Config Config
	peers  []*Peer
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseWSSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
}

// TearDownTest closes every connection opened by the test.
func (s *BaseWSSuite) TearDownTest() {
	for _, peer := range s.peers {
		_ = peer.conn.Close()
	}
	s.peers = nil
}

// Peer is one websocket connection opened by the suite.
type Peer struct {
	s    *BaseWSSuite
	name string
	conn *websocket.Conn
}

// Connect opens a connection with a colorized header in the test logs.
// token is sent as the ?token= query parameter when non-empty.
func (s *BaseWSSuite) Connect(name, token string) *Peer {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)

	target, err := url.Parse(s.Config.RelayURL)
	s.Require().NoError(err)
	if token != "" {
		query := target.Query()
		query.Set("token", token)
		target.RawQuery = query.Encode()
	}

	conn, _, err := websocket.DefaultDialer.Dial(target.String(), nil)
	s.Require().NoError(err, "Failed to connect to relay at "+s.Config.RelayURL)
	peer := &Peer{s: s, name: name, conn: conn}
	s.peers = append(s.peers, peer)
	return peer
}

// Send writes one event envelope.
func (p *Peer) Send(event string, data any) {
	raw, err := json.Marshal(data)
	p.s.Require().NoError(err)
	frame := Frame{Event: event, Data: raw}
	if p.s.Config.DebugJSON {
		p.s.T().Logf("%s >>> %s %s", p.name, event, raw)
	}
	p.s.Require().NoError(p.conn.WriteJSON(frame))
}

// Register sends the register event and waits for a successful acknowledgement.
func (p *Peer) Register(userID string) {
	p.Send("register", userID)
	var ack struct {
		Status string `json:"status"`
	}
	p.Expect("registered", &ack)
	p.s.Require().Equal("ok", ack.Status, p.name+" registration was rejected")
}

// Expect reads the next frame, requires its event name and decodes its data into out.
func (p *Peer) Expect(event string, out any) {
	frame := p.Next()
	p.s.Require().Equal(event, frame.Event, "%s received %s", p.name, frame.Data)
	if out != nil {
		p.s.Require().NoError(json.Unmarshal(frame.Data, out))
	}
}

// Next reads the next frame within the read timeout.
func (p *Peer) Next() Frame {
	p.s.Require().NoError(p.conn.SetReadDeadline(time.Now().Add(readTimeout)))
	var frame Frame
	p.s.Require().NoError(p.conn.ReadJSON(&frame), p.name+" did not receive a frame in time")
	if p.s.Config.DebugJSON {
		p.s.T().Logf("%s <<< %s %s", p.name, frame.Event, frame.Data)
	}
	return frame
}

// ExpectSilence requires that nothing arrives for the given duration.
// A read timeout breaks the connection, so it must be the last read on p.
func (p *Peer) ExpectSilence(d time.Duration) {
	p.s.Require().NoError(p.conn.SetReadDeadline(time.Now().Add(d)))
	var frame Frame
	err := p.conn.ReadJSON(&frame)
	p.s.Require().Error(err, "%s unexpectedly received %s", p.name, frame.Event)
}

// Close sends a normal close frame.
func (p *Peer) Close() {
	_ = p.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = p.conn.Close()
}
