package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/agentcore-dev/agentcore/pkg/observability"
)

// Router parses raw model output, stamps metadata, stores the result, and
// applies per-session visibility. Router is safe for concurrent use; the
// ordering guarantee lives in the Store's sequence assignment.
type Router struct {
	store Store
}

// NewRouter creates a router over the given store.
func NewRouter(store Store) *Router {
	return &Router{store: store}
}

// RouteInput carries the response context for one Route call.
type RouteInput struct {
	SessionID string
	AgentID   string
	Raw       string

	// ToolCalls is the ordered list of tool names invoked in the response.
	ToolCalls []string

	// ContinuationDepth is the task iteration count at emission time.
	ContinuationDepth int

	IsPartial bool
}

// Route splits the raw text into channel messages, stores all of them, and
// returns only the subset the session's visibility settings allow. Final is
// always included in the returned subset.
func (r *Router) Route(ctx context.Context, in RouteInput) ([]*Message, error) {
	if in.SessionID == "" {
		return nil, fmt.Errorf("route: session id is required")
	}

	segs := Parse(in.Raw)
	now := time.Now().UTC()

	stored := make([]*Message, 0, len(segs))
	for _, seg := range segs {
		msg := &Message{
			Channel: seg.Channel,
			Content: seg.Content,
			Metadata: Metadata{
				Timestamp:         now,
				AgentID:           in.AgentID,
				SessionID:         in.SessionID,
				ToolCalls:         in.ToolCalls,
				ContinuationDepth: in.ContinuationDepth,
				IsPartial:         in.IsPartial,
			},
		}
		if _, err := r.store.Append(ctx, msg); err != nil {
			return nil, fmt.Errorf("store %s message: %w", seg.Channel, err)
		}
		observability.RecordChannelMessage(string(msg.Channel))
		stored = append(stored, msg)
	}

	vis, err := r.store.GetVisibility(ctx, in.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load visibility: %w", err)
	}

	visible := make([]*Message, 0, len(stored))
	for _, m := range stored {
		if vis.Allows(m.Channel) {
			visible = append(visible, m)
		}
	}
	return visible, nil
}

// History returns stored messages matching the query, filtered by the
// session's current visibility. The read never mutates storage, so hidden
// messages stay stored: flipping a visibility flag and re-querying surfaces
// history that was previously filtered out.
func (r *Router) History(ctx context.Context, sessionID string, q HistoryQuery) ([]*Message, error) {
	vis, err := r.store.GetVisibility(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	msgs, err := r.store.History(ctx, sessionID, q)
	if err != nil {
		return nil, err
	}

	filtered := make([]*Message, 0, len(msgs))
	for _, m := range msgs {
		if vis.Allows(m.Channel) {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

// SetVisibility updates a session's channel display preferences.
func (r *Router) SetVisibility(ctx context.Context, sessionID string, vis Visibility) error {
	return r.store.SetVisibility(ctx, sessionID, vis)
}

// Visibility returns a session's channel display preferences.
func (r *Router) Visibility(ctx context.Context, sessionID string) (Visibility, error) {
	return r.store.GetVisibility(ctx, sessionID)
}

// ClearSession removes a session's stored history and preferences.
func (r *Router) ClearSession(ctx context.Context, sessionID string) error {
	return r.store.ClearSession(ctx, sessionID)
}

// CleanupOlderThan removes sessions idle longer than age and returns the
// number removed.
func (r *Router) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	return r.store.CleanupOlderThan(ctx, age)
}
