package storage

import (
	"strconv"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn in a conversation. ID and Timestamp are
// assigned by the store on persist; ClientID identifies the optimistic
// entry before that. IsStreaming is a transient flag and is never
// written to the store.
type ChatMessage struct {
	ID          int64
	ClientID    string
	Role        string
	Text        string
	ImageURL    *string
	Timestamp   time.Time
	IsStreaming bool
}

// Key returns the identifier a message is tracked under in local
// conversation state: the persisted id when known, otherwise the
// client-generated one.
func (m ChatMessage) Key() string {
	if m.ClientID != "" {
		return m.ClientID
	}
	return persistedKey(m.ID)
}

func persistedKey(id int64) string {
	return "m" + strconv.FormatInt(id, 10)
}

type Identity struct {
	ID        string
	CreatedAt time.Time
}
