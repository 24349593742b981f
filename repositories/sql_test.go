package repositories

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newSQLiteRepository(t *testing.T) *SQLRepository {
	t.Helper()
	repository, err := OpenSQLite(filepath.Join(t.TempDir(), "relay.db"), logs.GetLoggerFromLevel(slog.LevelDebug))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repository.Close() })
	return repository
}

func sqlSend(t *testing.T, repository *SQLRepository, sender, receiver, content string) chat.Message {
	t.Helper()
	ctx := context.Background()
	thread, err := repository.ResolveOrCreate(ctx, sender, receiver)
	require.NoError(t, err)
	message, err := repository.Persist(ctx, chat.PersistCommand{
		Content: content, SenderID: sender, ReceiverID: receiver,
		Thread: thread, Status: chat.StatusDelivered,
	})
	require.NoError(t, err)
	return message
}

func TestSQLRepository_Persist_Creates_Then_Reuses_Thread(t *testing.T) {
	req := require.New(t)
	repository := newSQLiteRepository(t)

	// Given alice writes to bob first
	first := sqlSend(t, repository, "alice", "bob", "hi bob")
	// When bob answers
	second := sqlSend(t, repository, "bob", "alice", "hi alice")

	// Then both messages share one thread owned by alice
	req.Equal(first.ThreadID, second.ThreadID)
	thread, err := repository.ResolveOrCreate(context.Background(), "alice", "bob")
	req.NoError(err)
	req.False(thread.IsNew)
	req.Equal("alice", thread.OwnerID)

	var count int64
	req.NoError(repository.db.Model(&ThreadModel{}).Count(&count).Error)
	req.Equal(int64(1), count)
}

func TestSQLRepository_Persist_Validation_Leaves_No_Thread(t *testing.T) {
	req := require.New(t)
	repository := newSQLiteRepository(t)
	ctx := context.Background()
	thread, err := repository.ResolveOrCreate(ctx, "alice", "bob")
	req.NoError(err)

	_, err = repository.Persist(ctx, chat.PersistCommand{
		SenderID: "alice", ReceiverID: "bob", Thread: thread, Status: chat.StatusSent,
	})
	req.ErrorIs(err, errors.ErrValidation)

	var count int64
	req.NoError(repository.db.Model(&ThreadModel{}).Count(&count).Error)
	req.Zero(count)
}

func TestSQLRepository_Failed_Message_Insert_Rolls_Back_Thread(t *testing.T) {
	req := require.New(t)
	repository := newSQLiteRepository(t)
	ctx := context.Background()

	// Given the messages table is gone
	req.NoError(repository.db.Migrator().DropTable(&MessageModel{}))
	thread, err := repository.ResolveOrCreate(ctx, "alice", "bob")
	req.NoError(err)

	// When a first message is persisted
	_, err = repository.Persist(ctx, chat.PersistCommand{
		Content: "hi", SenderID: "alice", ReceiverID: "bob", Thread: thread, Status: chat.StatusSent,
	})

	// Then the store is unavailable and no thread survived
	req.ErrorIs(err, errors.ErrStoreUnavailable)
	var count int64
	req.NoError(repository.db.Model(&ThreadModel{}).Count(&count).Error)
	req.Zero(count)
}

func TestSQLRepository_Concurrent_First_Messages_Create_A_Single_Thread(t *testing.T) {
	req := require.New(t)
	repository := newSQLiteRepository(t)
	ctx := context.Background()
	const senders = 8

	threads := make([]chat.Thread, senders)
	for i := range threads {
		thread, err := repository.ResolveOrCreate(ctx, "alice", "bob")
		req.NoError(err)
		threads[i] = thread
	}

	var wg sync.WaitGroup
	errs := make([]error, senders)
	results := make([]chat.Message, senders)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = repository.Persist(ctx, chat.PersistCommand{
				Content: fmt.Sprintf("first %d", i), SenderID: "alice", ReceiverID: "bob",
				Thread: threads[i], Status: chat.StatusSent,
			})
		}(i)
	}
	wg.Wait()

	threadIDs := make(map[uuid.UUID]struct{})
	for i := range results {
		req.NoError(errs[i])
		threadIDs[results[i].ThreadID] = struct{}{}
	}
	req.Len(threadIDs, 1)

	var count int64
	req.NoError(repository.db.Model(&ThreadModel{}).Count(&count).Error)
	req.Equal(int64(1), count)
}

func TestSQLRepository_GetThreadMessages_Pages_Newest_First(t *testing.T) {
	req := require.New(t)
	repository := newSQLiteRepository(t)
	ctx := context.Background()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repository.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	for _, content := range []string{"m1", "m2", "m3", "m4", "m5"} {
		sqlSend(t, repository, "alice", "bob", content)
	}

	_, page1, cursor1, err := repository.GetThreadMessages(ctx, "bob", "alice", nil, 2)
	req.NoError(err)
	req.Equal([]string{"m5", "m4"}, contents(page1))
	req.NotNil(cursor1)

	_, page2, cursor2, err := repository.GetThreadMessages(ctx, "bob", "alice", cursor1, 2)
	req.NoError(err)
	req.Equal([]string{"m3", "m2"}, contents(page2))
	req.NotNil(cursor2)

	_, page3, cursor3, err := repository.GetThreadMessages(ctx, "bob", "alice", cursor2, 2)
	req.NoError(err)
	req.Equal([]string{"m1"}, contents(page3))
	req.Nil(cursor3)
	req.Equal(chat.StatusDelivered, page3[0].Status)
}

func TestSQLRepository_GetThreadMessages_Malformed_Cursor(t *testing.T) {
	req := require.New(t)
	repository := newSQLiteRepository(t)
	sqlSend(t, repository, "alice", "bob", "hi")

	_, _, _, err := repository.GetThreadMessages(context.Background(), "alice", "bob", new(string), 2)
	req.ErrorIs(err, errors.ErrValidation)
}
