package e2e

import (
	"chat-relay/auth"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type message struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	SenderID    string `json:"senderId"`
	ReceiverID  string `json:"receiverId"`
	Status      string `json:"status"`
	IsDelivered bool   `json:"isDelivered"`
}

type testConversationSuite struct {
	BaseWSSuite
}

func TestConversationSuite(t *testing.T) {
	suite.Run(t, &testConversationSuite{})
}

func (s *testConversationSuite) SetupTest() {
	if s.Config.RelayURL == "" {
		s.T().Skip("RELAY_URL is not set, no relay to talk to")
	}
}

// token signs a handshake token when the relay runs with authentication.
func (s *testConversationSuite) token(userID string) string {
	verifier := auth.NewVerifier(s.Config.AuthSecret)
	if !verifier.Enabled() {
		return ""
	}
	token, err := verifier.GenerateToken(userID, time.Minute)
	s.Require().NoError(err)
	return token
}

func (s *testConversationSuite) TestFullConversationFlow() {
	// Fresh identities so that reruns against the same store do not collide
	alice := "alice-" + uuid.NewString()[:8]
	bob := "bob-" + uuid.NewString()[:8]
	content := "meet at the usual place " + uuid.NewString()

	var sender, phone, laptop *Peer

	s.Run("Step 0: Register both users, bob on two devices", func() {
		sender = s.Connect("alice connects", s.token(alice))
		sender.Register(alice)
		phone = s.Connect("bob connects from a phone", s.token(bob))
		phone.Register(bob)
		laptop = s.Connect("bob connects from a laptop", s.token(bob))
		laptop.Register(bob)
	})

	var saved message
	s.Run("Step 1: Send and fan out to every receiver connection", func() {
		sender.Send("sendMessage", map[string]string{
			"content": content, "senderId": alice, "receiverId": bob,
		})

		sender.Expect("messageSaved", &saved)
		s.Require().Equal(content, saved.Content)
		s.Require().True(saved.IsDelivered)
		s.Require().Equal("delivered", saved.Status)

		for _, peer := range []*Peer{phone, laptop} {
			var received message
			peer.Expect("receiveMessage", &received)
			s.Require().Equal(saved.ID, received.ID)
			s.Require().Equal(alice, received.SenderID)
		}
	})

	s.Run("Step 2: Bob reads the thread back", func() {
		laptop.Send("fetchHistory", map[string]any{"peerId": alice, "limit": 10})
		var page struct {
			ThreadID string    `json:"threadId"`
			Messages []message `json:"messages"`
		}
		laptop.Expect("history", &page)
		s.Require().NotEmpty(page.ThreadID)
		s.Require().Len(page.Messages, 1)
		s.Require().Equal(saved.ID, page.Messages[0].ID)
	})

	s.Run("Step 3: An empty message is rejected and reaches no one", func() {
		sender.Send("sendMessage", map[string]string{
			"content": "", "senderId": alice, "receiverId": bob,
		})
		var failure struct {
			Error string `json:"error"`
		}
		sender.Expect("messageError", &failure)
		s.Require().Equal("Invalid message", failure.Error)
		phone.ExpectSilence(300 * time.Millisecond)
	})

	s.Run("Step 4: Bob goes offline, the next message is stored only", func() {
		phone.Close()
		laptop.Close()
		// Disconnects are processed asynchronously by the relay read loop
		delivered := true
		for attempt := 0; attempt < 20 && delivered; attempt++ {
			time.Sleep(100 * time.Millisecond)
			sender.Send("sendMessage", map[string]string{
				"content": "are you there?", "senderId": alice, "receiverId": bob,
			})
			var stored message
			sender.Expect("messageSaved", &stored)
			delivered = stored.IsDelivered
			if !delivered {
				s.Require().Equal("sent", stored.Status)
			}
		}
		s.Require().False(delivered, "Receiver still looks reachable after disconnecting")
	})
}
