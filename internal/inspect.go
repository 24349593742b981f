package internal

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// InspectRow is a human-readable view of one badger entry.
type InspectRow struct {
	Key       string `json:"key"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	EntityID  string `json:"entityId"`
	Detail    string `json:"detail"`
}

type RowMapper func(key string, val []byte) InspectRow

// Scan maps every entry under prefix, at most limit rows when limit > 0.
func Scan(db *badger.DB, prefix string, limit int, mapper RowMapper) ([]InspectRow, error) {
	if mapper == nil {
		mapper = DefaultMapper
	}
	rows := make([]InspectRow, 0)
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if limit > 0 && len(rows) >= limit {
				return nil
			}
			item := it.Item()
			err := item.Value(func(val []byte) error {
				rows = append(rows, mapper(string(item.KeyCopy(nil)), val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return rows, err
}

// DefaultMapper understands the relay key layout:
// thread:{id}, idx:pair:{pair} and msg:{thread}:{nanos}:{id}.
func DefaultMapper(key string, val []byte) InspectRow {
	row := InspectRow{
		Key:       key,
		Type:      "RAW",
		Timestamp: "--:--:--",
		EntityID:  "--------",
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}

	switch {
	case strings.HasPrefix(key, "msg:"):
		row.Type = "MESSAGE"
		parts := strings.Split(key, ":")
		if len(parts) == 4 {
			if nanos, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
				row.Timestamp = time.Unix(0, nanos).UTC().Format("15:04:05")
			}
			row.EntityID = short(parts[3])
		}
		var message struct {
			SenderID   string `json:"senderId"`
			ReceiverID string `json:"receiverId"`
			Status     string `json:"status"`
			Content    string `json:"content"`
		}
		if json.Unmarshal(val, &message) == nil {
			row.Detail = message.SenderID + " -> " + message.ReceiverID +
				" [" + message.Status + "] " + truncate(message.Content, 40)
		}
	case strings.HasPrefix(key, "thread:"):
		row.Type = "THREAD"
		row.EntityID = short(strings.TrimPrefix(key, "thread:"))
		var thread struct {
			OwnerID   string    `json:"ownerId"`
			PairKey   string    `json:"pairKey"`
			CreatedAt time.Time `json:"createdAt"`
		}
		if json.Unmarshal(val, &thread) == nil {
			row.Timestamp = thread.CreatedAt.Format("15:04:05")
			row.Detail = "owner " + thread.OwnerID + ", pair " + thread.PairKey
		}
	case strings.HasPrefix(key, "idx:"):
		row.Type = "INDEX"
		row.EntityID = short(string(val))
		row.Detail = strings.TrimPrefix(key, "idx:")
	}
	return row
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
