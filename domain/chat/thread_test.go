package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPairKey_Is_Order_Independent(t *testing.T) {
	req := require.New(t)
	req.Equal(PairKey("alice", "bob"), PairKey("bob", "alice"))
	req.Equal(PairKey("alice", "alice"), PairKey("alice", "alice"))
}

func TestPairKey_Separator_In_Ids_Does_Not_Collide(t *testing.T) {
	req := require.New(t)
	req.NotEqual(PairKey("a:1", "b"), PairKey("a", "1:b"))
	req.NotEqual(PairKey("a|b", "c"), PairKey("a", "b|c"))
}

func TestNewThread_Is_Owned_By_Sender_And_Uncommitted(t *testing.T) {
	req := require.New(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600))

	thread := NewThread("alice", "bob", at)

	req.Equal("alice", thread.OwnerID)
	req.Equal(PairKey("bob", "alice"), thread.PairKey)
	req.True(thread.IsNew)
	req.Equal(time.UTC, thread.CreatedAt.Location())
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, StatusDelivered, StatusFor(true))
	require.Equal(t, StatusSent, StatusFor(false))
}
