package event

import "chat-relay/domain/chat"

// Event names exchanged with clients.
const (
	RegisterName       = "register"
	SendMessageName    = "sendMessage"
	FetchHistoryName   = "fetchHistory"
	SearchMessagesName = "searchMessages"

	RegisteredName     = "registered"
	MessageSavedName   = "messageSaved"
	ReceiveMessageName = "receiveMessage"
	MessageErrorName   = "messageError"
	HistoryName        = "history"
	SearchResultsName  = "searchResults"
	RequestErrorName   = "requestError"
)

const (
	RegistrationOK       = "ok"
	RegistrationRejected = "rejected"
)

// Outbound is an event emitted to a single connection.
type Outbound interface {
	Name() string
}

type Registered struct {
	Status       string `json:"status"`
	ConnectionID string `json:"connectionId"`
	Error        string `json:"error,omitempty"`
}

func (Registered) Name() string { return RegisteredName }

// MessageDelivery is the message payload shared by messageSaved and
// receiveMessage.
type MessageDelivery struct {
	chat.Message
	IsDelivered bool `json:"isDelivered"`
}

type MessageSaved struct {
	MessageDelivery
}

func (MessageSaved) Name() string { return MessageSavedName }

type ReceiveMessage struct {
	MessageDelivery
}

func (ReceiveMessage) Name() string { return ReceiveMessageName }

type MessageError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (MessageError) Name() string { return MessageErrorName }

type History struct {
	ThreadID string         `json:"threadId,omitempty"`
	PeerID   string         `json:"peerId"`
	Messages []chat.Message `json:"messages"`
	Cursor   *string        `json:"cursor,omitempty"`
}

func (History) Name() string { return HistoryName }

type SearchResults struct {
	Query    string         `json:"query"`
	Messages []chat.Message `json:"messages"`
}

func (SearchResults) Name() string { return SearchResultsName }

type RequestError struct {
	Request string `json:"request"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (RequestError) Name() string { return RequestErrorName }
