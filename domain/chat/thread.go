package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Thread anchors every message exchanged between two participants.
type Thread struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   string    `json:"ownerId"`
	PairKey   string    `json:"pairKey"`
	CreatedAt time.Time `json:"createdAt"`
	// IsNew is set when the thread was allocated by the resolver and has not
	// been committed yet.
	IsNew bool `json:"-"`
}

// NewThread allocates an uncommitted thread owned by ownerID.
func NewThread(ownerID, peerID string, at time.Time) Thread {
	return Thread{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		PairKey:   PairKey(ownerID, peerID),
		CreatedAt: at.UTC(),
		IsNew:     true,
	}
}

// PairKey builds the order-independent key identifying the conversation
// between a and b. Both identities are length-prefixed so that ids containing
// the separator cannot produce the same key.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%s:%d:%s", len(a), a, len(b), b)
}
