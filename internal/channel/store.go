package channel

import (
	"context"
	"sync"
	"time"
)

// DefaultHistoryCap bounds the per-channel ring buffer in production.
// Tests typically use a much smaller cap.
const DefaultHistoryCap = 1000

// DefaultRetention is how long an idle session's storage is kept before
// the janitor sweeps it.
const DefaultRetention = 24 * time.Hour

// Store persists routed channel messages and per-session preferences.
// Implementations must assign sequences so that, within one session,
// concurrent appends from different agents still observe a strict total
// order.
type Store interface {
	// Append stores the message, assigning and returning its sequence.
	// The session is created on first use.
	Append(ctx context.Context, msg *Message) (uint64, error)

	// History returns stored messages matching the query in sequence
	// order. It never mutates storage. Unknown sessions yield an empty
	// result, not an error.
	History(ctx context.Context, sessionID string, q HistoryQuery) ([]*Message, error)

	// SetVisibility stores the session's display preferences, creating
	// the session if needed.
	SetVisibility(ctx context.Context, sessionID string, vis Visibility) error

	// GetVisibility returns the session's preferences, or the defaults
	// for a session that has none stored.
	GetVisibility(ctx context.Context, sessionID string) (Visibility, error)

	// ClearSession removes all stored messages and preferences.
	ClearSession(ctx context.Context, sessionID string) error

	// CleanupOlderThan removes sessions idle for longer than age and
	// returns how many were removed.
	CleanupOlderThan(ctx context.Context, age time.Duration) (int, error)

	// Close releases resources held by the store.
	Close() error
}

// memorySession holds one session's state.
type memorySession struct {
	seq        uint64
	rings      map[Channel][]*Message
	vis        Visibility
	visSet     bool
	lastActive time.Time
}

// MemoryStore is the in-process Store. Each session keeps one bounded
// ring buffer per channel; the oldest messages are evicted first. A single
// mutex guards the sequence-increment-and-append pair, which is what makes
// the sequence a strict per-session total order even when multiple agents
// route into the same session concurrently.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
	cap      int
	now      func() time.Time
}

// NewMemoryStore creates a memory store with the given per-channel history
// cap. A non-positive cap falls back to DefaultHistoryCap.
func NewMemoryStore(historyCap int) *MemoryStore {
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	return &MemoryStore{
		sessions: make(map[string]*memorySession),
		cap:      historyCap,
		now:      time.Now,
	}
}

func (s *MemoryStore) session(id string) *memorySession {
	sess, ok := s.sessions[id]
	if !ok {
		sess = &memorySession{
			rings: make(map[Channel][]*Message),
			vis:   DefaultVisibility(),
		}
		s.sessions[id] = sess
	}
	return sess
}

// Append stores the message and assigns its sequence.
func (s *MemoryStore) Append(_ context.Context, msg *Message) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session(msg.Metadata.SessionID)
	sess.seq++
	msg.Metadata.Sequence = sess.seq
	sess.lastActive = s.now()

	ring := append(sess.rings[msg.Channel], msg)
	if len(ring) > s.cap {
		// Evict oldest; order of the remainder is untouched.
		ring = ring[len(ring)-s.cap:]
	}
	sess.rings[msg.Channel] = ring
	return sess.seq, nil
}

// History returns stored messages matching the query in sequence order.
func (s *MemoryStore) History(_ context.Context, sessionID string, q HistoryQuery) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}

	channels := q.Channels
	if len(channels) == 0 {
		channels = AllChannels
	}

	var out []*Message
	for _, c := range channels {
		for _, m := range sess.rings[c] {
			if m.Metadata.Sequence > q.SinceSequence {
				out = append(out, m)
			}
		}
	}
	sortBySequence(out)

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out, nil
}

// SetVisibility stores the session's display preferences.
func (s *MemoryStore) SetVisibility(_ context.Context, sessionID string, vis Visibility) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session(sessionID)
	sess.vis = vis
	sess.visSet = true
	sess.lastActive = s.now()
	return nil
}

// GetVisibility returns the session's preferences or the defaults.
func (s *MemoryStore) GetVisibility(_ context.Context, sessionID string) (Visibility, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[sessionID]; ok {
		return sess.vis, nil
	}
	return DefaultVisibility(), nil
}

// ClearSession removes the session entirely.
func (s *MemoryStore) ClearSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// CleanupOlderThan removes sessions idle for longer than age.
func (s *MemoryStore) CleanupOlderThan(_ context.Context, age time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-age)
	removed := 0
	for id, sess := range s.sessions {
		if sess.lastActive.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }

func sortBySequence(msgs []*Message) {
	// Insertion sort: rings are already sequence-ordered, so the merged
	// slice is nearly sorted and short.
	for i := 1; i < len(msgs); i++ {
		for j := i; j > 0 && msgs[j-1].Metadata.Sequence > msgs[j].Metadata.Sequence; j-- {
			msgs[j-1], msgs[j] = msgs[j], msgs[j-1]
		}
	}
}
