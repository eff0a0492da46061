package mailbox

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Mode selects how a message is delivered to its recipient.
type Mode string

const (
	// ModeAsync is fire-and-forget delivery: the sender does not wait.
	ModeAsync Mode = "async"

	// ModeSyncSwitch suspends the sender until the recipient replies
	// or the switch times out.
	ModeSyncSwitch Mode = "sync_switch"
)

// Status tracks a message through its delivery lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusProcessed Status = "processed"
)

// Message is a unit of inter-agent communication.
// Messages are created by NewMessage for fresh sends, or by Reply/Forward
// which carry the chain depth forward for cycle bounding.
type Message struct {
	ID      string
	From    string
	To      string
	Subject string
	Body    string
	Mode    Mode

	// ChainDepth counts how many times this message has been produced as
	// a reply or forward of another. Enqueue rejects messages whose depth
	// reaches the mailbox hop limit.
	ChainDepth int

	// CorrelationID ties a sync-switch reply back to the request that
	// started the switch. Empty for fresh async messages.
	CorrelationID string

	CreatedAt time.Time
	Status    Status
}

// NewMessage creates a fresh, user-initiated message with chain depth 0.
func NewMessage(from, to, subject, body string, mode Mode) *Message {
	return &Message{
		ID:        uuid.New().String(),
		From:      from,
		To:        to,
		Subject:   subject,
		Body:      body,
		Mode:      mode,
		CreatedAt: time.Now().UTC(),
		Status:    StatusPending,
	}
}

// Reply creates a response to this message addressed back to its sender.
// The reply inherits the chain depth plus one and the correlation id, so a
// reply to a sync-switch request can be matched to the blocked caller.
func (m *Message) Reply(subject, body string) *Message {
	r := NewMessage(m.To, m.From, subject, body, ModeAsync)
	r.ChainDepth = m.ChainDepth + 1
	r.CorrelationID = m.CorrelationID
	return r
}

// Forward creates a copy of this message addressed to a new recipient,
// inheriting the chain depth plus one.
func (m *Message) Forward(to string) *Message {
	f := NewMessage(m.To, to, m.Subject, m.Body, m.Mode)
	f.ChainDepth = m.ChainDepth + 1
	f.CorrelationID = m.CorrelationID
	return f
}

// String returns a short representation for logs.
func (m *Message) String() string {
	return fmt.Sprintf("Mail{%s %s->%s depth=%d %q}", m.ID[:8], m.From, m.To, m.ChainDepth, m.Subject)
}
