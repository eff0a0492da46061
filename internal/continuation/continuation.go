// Package continuation decides whether an agent's reasoning loop should
// run another iteration.
//
// The decision is driven by a structured signal the model may attach to
// its response. The evaluator is deliberately fail-closed: no signal, a
// malformed signal, or an unknown status all terminate the loop rather
// than risk iterating forever on ambiguous output.
package continuation

import (
	"encoding/json"
)

// Status is the model-requested loop outcome.
type Status string

const (
	StatusContinue  Status = "CONTINUE"
	StatusTerminate Status = "TERMINATE"
)

// DefaultMaxIterations caps a single task's loop regardless of what the
// model asks for.
const DefaultMaxIterations = 20

// Progress is optional step bookkeeping carried by a signal.
type Progress struct {
	CurrentStep          int     `json:"current_step"`
	TotalSteps           int     `json:"total_steps"`
	CompletionPercentage float64 `json:"completion_percentage"`
}

// Signal is the structured continuation field of a model response.
type Signal struct {
	Status   Status    `json:"status"`
	Reason   string    `json:"reason"`
	Progress *Progress `json:"progress,omitempty"`
}

// Policy configures the evaluator.
type Policy struct {
	// RequireExplicit terminates the loop when no valid signal is present.
	// When false, a missing signal is treated as CONTINUE until the cap.
	RequireExplicit bool

	// MaxIterations caps the loop. Zero falls back to DefaultMaxIterations.
	MaxIterations int
}

// Evaluator applies a Policy to continuation signals.
type Evaluator struct {
	policy Policy
}

// NewEvaluator creates an evaluator, applying defaults to the policy.
func NewEvaluator(policy Policy) *Evaluator {
	if policy.MaxIterations <= 0 {
		policy.MaxIterations = DefaultMaxIterations
	}
	return &Evaluator{policy: policy}
}

// MaxIterations returns the effective loop cap.
func (e *Evaluator) MaxIterations() int {
	return e.policy.MaxIterations
}

// Extract parses the continuation field of a structured response.
// It returns nil when the field is absent or malformed: a missing status,
// a non-string status, or a non-object value. Malformed input is not an
// error; it just means "no signal". Free text is never scanned.
func Extract(raw json.RawMessage) *Signal {
	if len(raw) == 0 {
		return nil
	}

	// Reject scalar or array values without attempting a partial decode.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil
	}
	statusRaw, ok := probe["status"]
	if !ok {
		return nil
	}
	var status string
	if err := json.Unmarshal(statusRaw, &status); err != nil || status == "" {
		return nil
	}

	var sig Signal
	if err := json.Unmarshal(raw, &sig); err != nil {
		return nil
	}
	return &sig
}

// ShouldContinue reports whether the loop should run another iteration.
//
// A status outside {CONTINUE, TERMINATE} is treated the same as TERMINATE.
// That tolerance is long-standing behavior that callers depend on; keep it.
func (e *Evaluator) ShouldContinue(sig *Signal, iteration int) bool {
	if iteration >= e.policy.MaxIterations {
		return false
	}
	if sig == nil {
		return !e.policy.RequireExplicit
	}
	return sig.Status == StatusContinue
}

// Record is the per-iteration history a task keeps for observability.
type Record struct {
	Iteration int
	Status    Status
	Reason    string
}

// History accumulates iteration records for one task.
type History struct {
	records []Record
}

// Add appends one iteration's outcome. A nil signal records TERMINATE with
// an explanatory reason.
func (h *History) Add(iteration int, sig *Signal) {
	rec := Record{Iteration: iteration, Status: StatusTerminate, Reason: "no continuation signal"}
	if sig != nil {
		rec.Status = sig.Status
		rec.Reason = sig.Reason
		if rec.Status != StatusContinue && rec.Status != StatusTerminate {
			// Preserve what the model actually said alongside the effect.
			rec.Reason = "invalid status " + string(sig.Status) + ": " + sig.Reason
			rec.Status = StatusTerminate
		}
	}
	h.records = append(h.records, rec)
}

// Records returns the accumulated history in iteration order.
func (h *History) Records() []Record {
	out := make([]Record, len(h.records))
	copy(out, h.records)
	return out
}

// Len returns the number of recorded iterations.
func (h *History) Len() int {
	return len(h.records)
}
