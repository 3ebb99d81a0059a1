package chat

import (
	"sort"
	"sync"
	"time"

	"github.com/SalehSedlah/doctor-assistant/internal/storage"
)

// Conversation is the in-memory view of one identity's chat. Messages
// are keyed by client id (or persisted id once stored), so an
// optimistic append and the later persisted copy collapse into a single
// entry instead of duplicating.
type Conversation struct {
	mu       sync.RWMutex
	messages map[string]storage.ChatMessage
	order    []string
}

func NewConversation() *Conversation {
	return &Conversation{messages: make(map[string]storage.ChatMessage)}
}

// Append inserts or replaces a message by its key.
func (c *Conversation) Append(msg storage.ChatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upsert(msg)
}

func (c *Conversation) upsert(msg storage.ChatMessage) {
	key := msg.Key()
	if _, ok := c.messages[key]; !ok {
		c.order = append(c.order, key)
	}
	c.messages[key] = msg
}

// AppendChunk concatenates a streamed chunk onto the message with the
// given key, creating a streaming assistant entry if none exists yet.
func (c *Conversation) AppendChunk(key, chunk string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, ok := c.messages[key]
	if !ok {
		msg = storage.ChatMessage{
			ClientID:    key,
			Role:        storage.RoleAssistant,
			Timestamp:   time.Now().UTC(),
			IsStreaming: true,
		}
		c.order = append(c.order, key)
	}
	msg.Text += chunk
	msg.IsStreaming = true
	c.messages[key] = msg
}

// Finalize marks the message as no longer streaming and sets its final
// text.
func (c *Conversation) Finalize(key, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, ok := c.messages[key]
	if !ok {
		return
	}
	msg.Text = text
	msg.IsStreaming = false
	c.messages[key] = msg
}

// ApplySnapshot replaces the persisted view of the conversation with
// the snapshot while retaining any message that is still streaming.
// Snapshots are full histories, never deltas, so arrival order of
// stale snapshots cannot corrupt the view.
func (c *Conversation) ApplySnapshot(snapshot []storage.ChatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var streaming []storage.ChatMessage
	for _, key := range c.order {
		if msg := c.messages[key]; msg.IsStreaming {
			streaming = append(streaming, msg)
		}
	}

	c.messages = make(map[string]storage.ChatMessage, len(snapshot)+len(streaming))
	c.order = c.order[:0]
	for _, msg := range snapshot {
		c.upsert(msg)
	}
	for _, msg := range streaming {
		c.upsert(msg)
	}
}

// History returns the messages ordered by timestamp, ties broken by
// insertion order.
func (c *Conversation) History() []storage.ChatMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]storage.ChatMessage, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.messages[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}
