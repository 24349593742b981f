package chat

// Command is a discrete task produced by the transport for one connection.
type Command interface {
	ConnectionID() string
}

type RegisterCommand struct {
	Connection string
	UserID     string
	Token      string
}

func (c RegisterCommand) ConnectionID() string { return c.Connection }

type SendMessageCommand struct {
	Connection string
	Content    string `validate:"required"`
	SenderID   string `validate:"required"`
	ReceiverID string `validate:"required"`
}

func (c SendMessageCommand) ConnectionID() string { return c.Connection }

type FetchHistoryCommand struct {
	Connection string
	UserID     string `validate:"required"`
	PeerID     string `validate:"required"`
	Cursor     *string
	Limit      int
}

func (c FetchHistoryCommand) ConnectionID() string { return c.Connection }

type SearchMessagesCommand struct {
	Connection string
	UserID     string `validate:"required"`
	Query      string `validate:"required"`
	Limit      int
}

func (c SearchMessagesCommand) ConnectionID() string { return c.Connection }
