package repositories

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func openBadger(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newBadgerRepository(t *testing.T) *MessageRepository {
	return NewMessageRepository(openBadger(t), logs.GetLoggerFromLevel(slog.LevelDebug))
}

func send(t *testing.T, repository *MessageRepository, sender, receiver, content string) chat.Message {
	t.Helper()
	ctx := context.Background()
	thread, err := repository.ResolveOrCreate(ctx, sender, receiver)
	require.NoError(t, err)
	message, err := repository.Persist(ctx, chat.PersistCommand{
		Content:    content,
		SenderID:   sender,
		ReceiverID: receiver,
		Thread:     thread,
		Status:     chat.StatusSent,
	})
	require.NoError(t, err)
	return message
}

func Test_ResolveOrCreate_Unknown_Pair_Returns_Uncommitted_Thread(t *testing.T) {
	req := require.New(t)
	repository := newBadgerRepository(t)
	ctx := context.Background()

	// When the pair never talked
	thread, err := repository.ResolveOrCreate(ctx, "alice", "bob")

	// Then a new thread owned by the sender is allocated
	req.NoError(err)
	req.True(thread.IsNew)
	req.Equal("alice", thread.OwnerID)

	// And nothing is written until a message is persisted
	again, err := repository.ResolveOrCreate(ctx, "alice", "bob")
	req.NoError(err)
	req.True(again.IsNew)
	req.NotEqual(thread.ID, again.ID)
}

func Test_Persist_Creates_Thread_Then_Reuses_It_In_Both_Directions(t *testing.T) {
	req := require.New(t)
	repository := newBadgerRepository(t)

	// Given alice writes to bob first
	first := send(t, repository, "alice", "bob", "hi bob")

	// When bob answers
	second := send(t, repository, "bob", "alice", "hi alice")

	// Then both messages share the same thread, owned by alice
	req.Equal(first.ThreadID, second.ThreadID)
	thread, err := repository.ResolveOrCreate(context.Background(), "bob", "alice")
	req.NoError(err)
	req.False(thread.IsNew)
	req.Equal(first.ThreadID, thread.ID)
	req.Equal("alice", thread.OwnerID)
}

func Test_Persist_Returns_Populated_Message(t *testing.T) {
	req := require.New(t)
	repository := newBadgerRepository(t)
	before := time.Now().UTC()

	message := send(t, repository, "alice", "bob", "hello")

	req.NotEqual(uuid.Nil, message.ID)
	req.NotEqual(uuid.Nil, message.ThreadID)
	req.Equal("hello", message.Content)
	req.Equal(chat.StatusSent, message.Status)
	req.Equal(time.UTC, message.CreatedAt.Location())
	req.False(message.CreatedAt.Before(before))
}

func Test_Persist_Self_Message_Is_Allowed(t *testing.T) {
	req := require.New(t)
	repository := newBadgerRepository(t)

	message := send(t, repository, "alice", "alice", "note to self")

	_, messages, _, err := repository.GetThreadMessages(context.Background(), "alice", "alice", nil, 10)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal(message.ID, messages[0].ID)
}

func Test_Persist_Invalid_Command_Is_Rejected(t *testing.T) {
	req := require.New(t)
	repository := newBadgerRepository(t)
	ctx := context.Background()
	thread, err := repository.ResolveOrCreate(ctx, "alice", "bob")
	req.NoError(err)

	tests := []struct {
		name string
		cmd  chat.PersistCommand
	}{
		{"Empty content", chat.PersistCommand{SenderID: "alice", ReceiverID: "bob", Thread: thread, Status: chat.StatusSent}},
		{"Missing sender", chat.PersistCommand{Content: "hi", ReceiverID: "bob", Thread: thread, Status: chat.StatusSent}},
		{"Missing receiver", chat.PersistCommand{Content: "hi", SenderID: "alice", Thread: thread, Status: chat.StatusSent}},
		{"Unknown status", chat.PersistCommand{Content: "hi", SenderID: "alice", ReceiverID: "bob", Thread: thread, Status: "read"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repository.Persist(ctx, tt.cmd)
			require.ErrorIs(t, err, errors.ErrValidation)
		})
	}

	// Then no thread was left behind
	again, err := repository.ResolveOrCreate(ctx, "alice", "bob")
	req.NoError(err)
	req.True(again.IsNew)
}

func Test_Persist_Closed_Store_Is_Unavailable(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	repository := NewMessageRepository(db, logs.GetLoggerFromLevel(slog.LevelDebug))
	req.NoError(db.Close())

	_, err = repository.ResolveOrCreate(context.Background(), "alice", "bob")
	req.ErrorIs(err, errors.ErrStoreUnavailable)

	_, err = repository.Persist(context.Background(), chat.PersistCommand{
		Content: "hi", SenderID: "alice", ReceiverID: "bob",
		Thread: chat.NewThread("alice", "bob", time.Now()), Status: chat.StatusSent,
	})
	req.ErrorIs(err, errors.ErrStoreUnavailable)
}

func Test_Concurrent_First_Messages_Create_A_Single_Thread(t *testing.T) {
	req := require.New(t)
	repository := newBadgerRepository(t)
	ctx := context.Background()
	const senders = 8

	// Given every sender resolved the pair before anybody persisted
	threads := make([]chat.Thread, senders)
	for i := range threads {
		thread, err := repository.ResolveOrCreate(ctx, "alice", "bob")
		req.NoError(err)
		req.True(thread.IsNew)
		threads[i] = thread
	}

	// When they all persist concurrently
	var wg sync.WaitGroup
	results := make([]chat.Message, senders)
	errs := make([]error, senders)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender, receiver := "alice", "bob"
			if i%2 == 1 {
				sender, receiver = receiver, sender
			}
			results[i], errs[i] = repository.Persist(ctx, chat.PersistCommand{
				Content: "first", SenderID: sender, ReceiverID: receiver,
				Thread: threads[i], Status: chat.StatusSent,
			})
		}(i)
	}
	wg.Wait()

	// Then exactly one thread holds every message
	threadIDs := make(map[uuid.UUID]struct{})
	for i := range results {
		req.NoError(errs[i])
		threadIDs[results[i].ThreadID] = struct{}{}
	}
	req.Len(threadIDs, 1)

	var stored int
	err := repository.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(threadPrefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			stored++
		}
		return nil
	})
	req.NoError(err)
	req.Equal(1, stored)
}

func Test_GetThreadMessages_Pages_Newest_First(t *testing.T) {
	req := require.New(t)
	repository := newBadgerRepository(t)
	ctx := context.Background()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repository.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	for _, content := range []string{"m1", "m2", "m3", "m4", "m5"} {
		send(t, repository, "alice", "bob", content)
	}

	// --- PAGE 1 ---
	thread, page1, cursor1, err := repository.GetThreadMessages(ctx, "bob", "alice", nil, 2)
	req.NoError(err)
	req.False(thread.IsNew)
	req.Equal([]string{"m5", "m4"}, contents(page1))
	req.NotNil(cursor1)

	// --- PAGE 2 ---
	_, page2, cursor2, err := repository.GetThreadMessages(ctx, "bob", "alice", cursor1, 2)
	req.NoError(err)
	req.Equal([]string{"m3", "m2"}, contents(page2))
	req.NotNil(cursor2)

	// --- PAGE 3 ---
	_, page3, cursor3, err := repository.GetThreadMessages(ctx, "bob", "alice", cursor2, 2)
	req.NoError(err)
	req.Equal([]string{"m1"}, contents(page3))
	req.Nil(cursor3)

	// The same cursor always gives the same page
	_, again, _, err := repository.GetThreadMessages(ctx, "alice", "bob", cursor1, 2)
	req.NoError(err)
	req.Equal(page2, again)
}

func Test_GetThreadMessages_Unknown_Pair_Is_Empty(t *testing.T) {
	req := require.New(t)
	repository := newBadgerRepository(t)
	send(t, repository, "alice", "bob", "hi")

	thread, messages, cursor, err := repository.GetThreadMessages(context.Background(), "alice", "carol", nil, 10)

	req.NoError(err)
	req.Equal(uuid.Nil, thread.ID)
	req.Empty(messages)
	req.Nil(cursor)
}

func contents(messages []chat.Message) []string {
	res := make([]string, 0, len(messages))
	for _, m := range messages {
		res = append(res, m.Content)
	}
	return res
}
