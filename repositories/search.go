package repositories

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/blugelabs/bluge"
	"github.com/blugelabs/bluge/search"
)

const (
	fieldContent     = "content"
	fieldParticipant = "participant"
	fieldThread      = "thread_id"
	fieldCreatedAt   = "created_at"
	fieldPayload     = "payload"
)

var _ contract.MessageSearcher = (*SearchRepository)(nil)

// SearchRepository indexes persisted messages in bluge for full-text search.
// Every message is indexed under both participants, so a user only ever
// finds the messages they sent or received.
type SearchRepository struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewSearchRepository(writer *bluge.Writer, log *slog.Logger) *SearchRepository {
	return &SearchRepository{writer: writer, log: log}
}

var _ contract.MessageIndexer = (*SearchRepository)(nil)

// Index is idempotent: the document id is the message id.
func (r *SearchRepository) Index(ctx context.Context, message chat.Message) error {
	return r.IndexBatch(ctx, []chat.Message{message})
}

// IndexBatch writes all messages in a single bluge batch.
func (r *SearchRepository) IndexBatch(_ context.Context, messages []chat.Message) error {
	batch := bluge.NewBatch()
	for _, message := range messages {
		doc, err := toDocument(message)
		if err != nil {
			return err
		}
		batch.Update(doc.ID(), doc)
	}
	if err := r.writer.Batch(batch); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	r.log.Debug("Messages indexed", "count", len(messages))
	return nil
}

func toDocument(message chat.Message) (*bluge.Document, error) {
	payload, err := json.Marshal(message)
	if err != nil {
		return nil, err
	}
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewTextField(fieldContent, message.Content)).
		AddField(bluge.NewKeywordField(fieldParticipant, message.SenderID)).
		AddField(bluge.NewKeywordField(fieldThread, message.ThreadID.String()).StoreValue()).
		AddField(bluge.NewDateTimeField(fieldCreatedAt, message.CreatedAt).Sortable()).
		AddField(bluge.NewStoredOnlyField(fieldPayload, payload))
	if message.ReceiverID != message.SenderID {
		doc.AddField(bluge.NewKeywordField(fieldParticipant, message.ReceiverID))
	}
	return doc, nil
}

// Search matches every term of terms against message contents, newest first.
func (r *SearchRepository) Search(ctx context.Context, userID, terms string, limit int) ([]chat.Message, error) {
	reader, err := r.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	defer func() { _ = reader.Close() }()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(terms).
			SetField(fieldContent).
			SetOperator(bluge.MatchQueryOperatorAnd)).
		AddMust(bluge.NewTermQuery(userID).SetField(fieldParticipant))

	request := bluge.NewTopNSearch(limit, query).SortBy([]string{"-" + fieldCreatedAt})
	matches, err := reader.Search(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}

	messages := make([]chat.Message, 0)
	match, err := matches.Next()
	for err == nil && match != nil {
		message, decodeErr := decodeMatch(match)
		if decodeErr != nil {
			return nil, decodeErr
		}
		messages = append(messages, message)
		match, err = matches.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	return messages, nil
}

func decodeMatch(match *search.DocumentMatch) (chat.Message, error) {
	var message chat.Message
	var decodeErr error
	err := match.VisitStoredFields(func(field string, value []byte) bool {
		if field == fieldPayload {
			decodeErr = json.Unmarshal(value, &message)
			return false
		}
		return true
	})
	if err != nil {
		return chat.Message{}, err
	}
	return message, decodeErr
}
