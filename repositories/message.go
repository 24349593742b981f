package repositories

import (
	"bytes"
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	threadPrefix  = "thread:"
	pairPrefix    = "idx:pair:"
	messagePrefix = "msg:"

	// Bounded re-reads after a transaction conflict on the pair index.
	maxPersistAttempts = 3
)

var (
	_ contract.ThreadResolver = (*MessageRepository)(nil)
	_ contract.MessageStore   = (*MessageRepository)(nil)
	_ contract.HistoryReader  = (*MessageRepository)(nil)
)

// MessageRepository stores threads and messages in BadgerDB.
//
// Layout:
//
//	thread:{threadID}                         -> thread JSON
//	idx:pair:{pairKey}                        -> threadID
//	msg:{threadID}:{unixNano padded}:{msgID}  -> message JSON
type MessageRepository struct {
	db       *badger.DB
	log      *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{
		db:       db,
		log:      log,
		validate: validator.New(),
		now:      time.Now,
	}
}

func threadKey(id uuid.UUID) []byte {
	return []byte(threadPrefix + id.String())
}

func pairKey(key string) []byte {
	return []byte(pairPrefix + key)
}

func threadMessagesPrefix(threadID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s%s:", messagePrefix, threadID))
}

// messageKey ensures chronological sorting using 19-digit zero padding, the
// message id breaking ties between messages stored at the same nanosecond.
func messageKey(message chat.Message) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s",
		messagePrefix, message.ThreadID, message.CreatedAt.UnixNano(), message.ID))
}

// ResolveOrCreate returns the thread shared by the two participants, or a new
// uncommitted one owned by the sender. The new thread only becomes durable
// when Persist writes its first message.
func (m *MessageRepository) ResolveOrCreate(ctx context.Context, senderID, receiverID string) (chat.Thread, error) {
	if err := ctx.Err(); err != nil {
		return chat.Thread{}, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	var thread chat.Thread
	var found bool
	err := m.db.View(func(txn *badger.Txn) error {
		var err error
		thread, found, err = findThread(txn, chat.PairKey(senderID, receiverID))
		return err
	})
	if err != nil {
		return chat.Thread{}, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	if found {
		return thread, nil
	}
	return chat.NewThread(senderID, receiverID, m.now()), nil
}

// Persist writes the message, and the thread with its pair index entry when
// the thread is new, in a single transaction.
// Two first messages racing for the same pair conflict on the index key: the
// loser re-reads the index and attaches its message to the winning thread.
func (m *MessageRepository) Persist(ctx context.Context, cmd chat.PersistCommand) (chat.Message, error) {
	if err := m.validate.Struct(cmd); err != nil {
		return chat.Message{}, fmt.Errorf("%w: %w", errors.ErrValidation, err)
	}

	message := chat.Message{
		ID:         uuid.New(),
		Content:    cmd.Content,
		SenderID:   cmd.SenderID,
		ReceiverID: cmd.ReceiverID,
		Status:     cmd.Status,
		CreatedAt:  m.now().UTC(),
	}

	for attempt := 1; attempt <= maxPersistAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return chat.Message{}, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
		}
		err := m.db.Update(func(txn *badger.Txn) error {
			threadID, err := m.ensureThread(txn, cmd)
			if err != nil {
				return err
			}
			message.ThreadID = threadID
			value, err := json.Marshal(message)
			if err != nil {
				return err
			}
			return txn.Set(messageKey(message), value)
		})
		switch {
		case err == nil:
			return message, nil
		case errors.Is(err, badger.ErrConflict):
			m.log.Debug("Pair index conflict, retrying", "attempt", attempt,
				"sender_id", cmd.SenderID, "receiver_id", cmd.ReceiverID)
		default:
			return chat.Message{}, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
		}
	}
	return chat.Message{}, fmt.Errorf("%w: too many conflicts on thread creation", errors.ErrStoreUnavailable)
}

// ensureThread returns the id of the thread the message belongs to, creating
// the thread inside txn if nobody did yet.
func (m *MessageRepository) ensureThread(txn *badger.Txn, cmd chat.PersistCommand) (uuid.UUID, error) {
	if !cmd.Thread.IsNew && cmd.Thread.ID != uuid.Nil {
		return cmd.Thread.ID, nil
	}

	key := chat.PairKey(cmd.SenderID, cmd.ReceiverID)
	existing, found, err := findThread(txn, key)
	if err != nil {
		return uuid.Nil, err
	}
	if found {
		return existing.ID, nil
	}

	thread := cmd.Thread
	if thread.ID == uuid.Nil {
		thread = chat.NewThread(cmd.SenderID, cmd.ReceiverID, m.now())
	}
	thread.PairKey = key
	value, err := json.Marshal(thread)
	if err != nil {
		return uuid.Nil, err
	}
	if err = txn.Set(threadKey(thread.ID), value); err != nil {
		return uuid.Nil, err
	}
	if err = txn.Set(pairKey(key), []byte(thread.ID.String())); err != nil {
		return uuid.Nil, err
	}
	return thread.ID, nil
}

func findThread(txn *badger.Txn, key string) (chat.Thread, bool, error) {
	item, err := txn.Get(pairKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return chat.Thread{}, false, nil
	}
	if err != nil {
		return chat.Thread{}, false, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return chat.Thread{}, false, err
	}
	threadID, err := uuid.ParseBytes(raw)
	if err != nil {
		return chat.Thread{}, false, err
	}

	item, err = txn.Get(threadKey(threadID))
	if err != nil {
		return chat.Thread{}, false, err
	}
	var thread chat.Thread
	err = item.Value(func(value []byte) error {
		return json.Unmarshal(value, &thread)
	})
	return thread, err == nil, err
}

// GetThreadMessages pages through the thread of userID and peerID using a
// reverse prefix scan, newest first. The returned cursor is nil on the last
// page. A pair without a thread yields an empty page.
func (m *MessageRepository) GetThreadMessages(ctx context.Context, userID, peerID string,
	cursor *string, limit int) (chat.Thread, []chat.Message, *string, error) {
	if err := ctx.Err(); err != nil {
		return chat.Thread{}, nil, nil, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}

	var (
		thread   chat.Thread
		found    bool
		messages = make([]chat.Message, 0)
		next     *string
	)
	err := m.db.View(func(txn *badger.Txn) error {
		var err error
		thread, found, err = findThread(txn, chat.PairKey(userID, peerID))
		if err != nil || !found {
			return err
		}

		prefix := threadMessagesPrefix(thread.ID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			seekKey = append(bytes.Clone(prefix), 0xFF)
		default:
			seekKey = append(bytes.Clone(prefix), []byte(*cursor)...)
		}
		it.Seek(seekKey)

		// The cursor is the last key already returned
		if cursor != nil && it.ValidForPrefix(prefix) && bytes.Equal(it.Item().Key(), seekKey) {
			it.Next()
		}

		var lastKey string
		for ; it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(messages) == limit {
				next = &lastKey
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", limit))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefix):])
			err := item.Value(func(value []byte) error {
				var message chat.Message
				if err := json.Unmarshal(value, &message); err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return chat.Thread{}, nil, nil, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	return thread, messages, next, nil
}
