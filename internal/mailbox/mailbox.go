// Package mailbox implements the per-agent FIFO mail queue with
// chain-depth cycle bounding.
//
// Each agent owns exactly one Mailbox. Other goroutines may enqueue into
// it, but only the owning agent's runtime drains it, which keeps the
// delivery order meaningful without per-message locking.
package mailbox

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultMaxHops bounds how many reply/forward hops a mail chain may take
// before it is rejected as circular.
const DefaultMaxHops = 10

// ErrCircularMail is returned by Enqueue when a message's chain depth has
// reached the mailbox hop limit. Bounding depth is deliberately cheaper and
// more conservative than graph cycle detection: a legitimate relay chain
// longer than the limit is also rejected.
var ErrCircularMail = errors.New("circular mail chain: max hops exceeded")

// Mailbox is an ordered queue of messages for a single agent.
// Mailbox is safe for concurrent use.
type Mailbox struct {
	mu      sync.Mutex
	queue   []*Message
	maxHops int
}

// New creates a mailbox with the given hop limit.
// A non-positive limit falls back to DefaultMaxHops.
func New(maxHops int) *Mailbox {
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	return &Mailbox{maxHops: maxHops}
}

// Enqueue appends a pending message in insertion order.
// It fails with ErrCircularMail if the message's chain depth has reached
// the hop limit.
func (b *Mailbox) Enqueue(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("enqueue: nil message")
	}
	if msg.ChainDepth >= b.maxHops {
		return fmt.Errorf("%w (depth %d, max %d)", ErrCircularMail, msg.ChainDepth, b.maxHops)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, msg)
	return nil
}

// Drain returns and removes all pending messages in insertion order,
// marking them Delivered.
func (b *Mailbox) Drain() []*Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.queue
	b.queue = nil
	for _, m := range out {
		m.Status = StatusDelivered
	}
	return out
}

// Len returns the number of queued messages without removing them.
func (b *Mailbox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Clear discards all queued messages and returns how many were dropped.
// Used when the owning agent stops.
func (b *Mailbox) Clear() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.queue)
	b.queue = nil
	return n
}

// MaxHops returns the configured hop limit.
func (b *Mailbox) MaxHops() int {
	return b.maxHops
}
