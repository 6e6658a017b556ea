package agents

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// messageNamespace scopes the name-based message ids.
var messageNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("sosim/message"))

// Message is an opaque payload travelling between agents. It is never
// modified after creation.
type Message struct {
	ID          uuid.UUID `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Tick        int       `json:"tick"` // Tick the message was built in
	Payload     any       `json:"payload,omitempty"`
}

// NewMessage builds a message whose id is derived from the sender, the tick
// and a per-tick sequence number, so the same tick replays to the same ids.
func NewMessage(sender, recipient string, tick, seq int, payload any) Message {
	name := fmt.Sprintf("%s/%d/%d/%s", sender, tick, seq, recipient)
	return Message{
		ID:          uuid.NewSHA1(messageNamespace, []byte(name)),
		SenderID:    sender,
		RecipientID: recipient,
		Tick:        tick,
		Payload:     payload,
	}
}

// Mailbox is a FIFO queue of incoming messages. Send and Drain may be called
// from different goroutines.
type Mailbox struct {
	mu    sync.Mutex
	queue []Message
}

// NewMailbox returns an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{}
}

// Send appends a message.
func (m *Mailbox) Send(msg Message) {
	m.mu.Lock()
	m.queue = append(m.queue, msg)
	m.mu.Unlock()
}

// Drain removes and returns every queued message in arrival order.
func (m *Mailbox) Drain() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.queue
	m.queue = nil
	return out
}

// Len returns the number of queued messages.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
