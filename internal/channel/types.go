// Package channel splits raw model output into semantically distinct
// streams and stores them per session with bounded history.
//
// A single response may carry internal reasoning, operational narration,
// and the user-facing result. The router separates those, stamps each with
// a per-session monotonic sequence, and applies the session's visibility
// preferences before anything is surfaced.
package channel

import (
	"time"
)

// Channel identifies one of the three output streams.
type Channel string

const (
	// Analysis carries the model's internal reasoning. Hidden by default.
	Analysis Channel = "analysis"

	// Commentary carries tool and operational narration. Shown by default.
	Commentary Channel = "commentary"

	// Final carries the user-facing result. Always shown.
	Final Channel = "final"
)

// AllChannels lists every channel in display order.
var AllChannels = []Channel{Analysis, Commentary, Final}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case Analysis, Commentary, Final:
		return true
	}
	return false
}

// Segment is one parsed piece of raw output, before metadata stamping.
type Segment struct {
	Channel Channel
	Content string
}

// Metadata is stamped onto every routed message.
type Metadata struct {
	// Sequence is strictly increasing within a session across all
	// channels combined. Assigned by the store at append time.
	Sequence uint64 `json:"sequence"`

	Timestamp time.Time `json:"timestamp"`
	AgentID   string    `json:"agent_id"`
	SessionID string    `json:"session_id"`

	// ToolCalls is the ordered list of tool names invoked in the
	// response this message was split from.
	ToolCalls []string `json:"tool_calls,omitempty"`

	// ContinuationDepth is the task iteration count at emission time.
	ContinuationDepth int `json:"continuation_depth"`

	IsPartial bool           `json:"is_partial"`
	Custom    map[string]any `json:"custom,omitempty"`
}

// Message is one routed piece of output.
type Message struct {
	Channel  Channel  `json:"channel"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Visibility holds per-session channel display preferences.
// Final is always visible and has no toggle.
type Visibility struct {
	ShowCommentary bool `json:"show_commentary"`
	ShowAnalysis   bool `json:"show_analysis"`
}

// DefaultVisibility returns the per-session defaults: commentary on,
// analysis off.
func DefaultVisibility() Visibility {
	return Visibility{ShowCommentary: true, ShowAnalysis: false}
}

// Allows reports whether a channel passes this visibility filter.
func (v Visibility) Allows(c Channel) bool {
	switch c {
	case Final:
		return true
	case Commentary:
		return v.ShowCommentary
	case Analysis:
		return v.ShowAnalysis
	}
	return false
}

// HistoryQuery filters a history read.
type HistoryQuery struct {
	// Channels restricts results; empty means all channels.
	Channels []Channel

	// Limit keeps only the most recent N matches when positive.
	Limit int

	// SinceSequence returns only messages with a strictly greater
	// sequence, supporting incremental polling.
	SinceSequence uint64
}
