// Package agent owns one agent's state machine, its sleep/wake timers,
// and the runtime loop that repeatedly invokes the AI collaborator until
// the continuation evaluator says stop.
package agent

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/agentcore-dev/agentcore/internal/mailbox"
	"github.com/agentcore-dev/agentcore/pkg/llm"
)

var (
	// ErrInvalidDuration is returned by Sleep for a non-positive duration.
	ErrInvalidDuration = errors.New("sleep duration must be positive")

	// ErrAgentStopped is returned when an operation targets a stopped agent.
	ErrAgentStopped = errors.New("agent is stopped")

	// ErrAgentBusy is returned when a task is dispatched to an agent whose
	// loop is already running.
	ErrAgentBusy = errors.New("agent is already processing a task")

	// ErrAgentSleeping is returned when a task is dispatched to a sleeping
	// agent. The caller wakes it first or leaves the work queued.
	ErrAgentSleeping = errors.New("agent is sleeping")
)

// Agent is one running unit of work: an id, a state machine, an
// exclusively-owned mailbox, and the collaborator handle bound at
// creation.
//
// State and timers are mutated only under the agent's own mutex; the
// mailbox has its own lock. Other agents never touch these directly.
type Agent struct {
	id           string
	collaborator llm.Collaborator

	mu         sync.Mutex
	state      State
	wakeAt     time.Time
	wakeEvents map[string]struct{}
	sleepTimer *time.Timer

	// onIdle fires whenever the agent becomes idle with queued mail, so
	// the owner can schedule mailbox processing. Mail enqueued while the
	// agent is busy or asleep is never dropped; it waits for this hook.
	onIdle func()

	mailbox *mailbox.Mailbox
}

// Snapshot is a point-in-time view of an agent's externally visible state.
type Snapshot struct {
	ID         string     `json:"id"`
	State      State      `json:"-"`
	StateName  string     `json:"state"`
	WakeAt     *time.Time `json:"wake_at,omitempty"`
	QueuedMail int        `json:"queued_mail"`
}

// New creates an idle agent owning a fresh mailbox with the given hop
// limit. Zero maxHops falls back to the mailbox default.
func New(id string, collaborator llm.Collaborator, maxHops int) *Agent {
	return &Agent{
		id:           id,
		collaborator: collaborator,
		state:        StateIdle,
		mailbox:      mailbox.New(maxHops),
	}
}

// ID returns the agent's unique identifier.
func (a *Agent) ID() string { return a.id }

// Mailbox returns the agent's mailbox. Callers enqueue through it; only
// this agent's runtime drains it.
func (a *Agent) Mailbox() *mailbox.Mailbox { return a.mailbox }

// Collaborator returns the AI collaborator bound to this agent.
func (a *Agent) Collaborator() llm.Collaborator { return a.collaborator }

// SetIdleHook registers the callback invoked whenever the agent turns
// idle while mail is queued. Set once at registration, before any mail
// flows.
func (a *Agent) SetIdleHook(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onIdle = fn
}

// State returns the current lifecycle state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Snapshot returns the agent's externally visible state.
func (a *Agent) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		ID:         a.id,
		State:      a.state,
		StateName:  a.state.String(),
		QueuedMail: a.mailbox.Len(),
	}
	if !a.wakeAt.IsZero() {
		t := a.wakeAt
		snap.WakeAt = &t
	}
	return snap
}

// Sleep suspends the agent until the duration elapses, one of the wake
// events is raised, or an explicit wake call, whichever happens first.
// A zero duration with wake events sleeps until an event alone; a
// negative duration, or a zero duration with no events, is invalid.
func (a *Agent) Sleep(duration time.Duration, wakeEvents []string) error {
	if duration < 0 || (duration == 0 && len(wakeEvents) == 0) {
		return fmt.Errorf("%w (got %s)", ErrInvalidDuration, duration)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateStopped {
		return ErrAgentStopped
	}
	a.cancelTimerLocked()

	a.state = StateSleeping
	a.wakeEvents = make(map[string]struct{}, len(wakeEvents))
	for _, ev := range wakeEvents {
		a.wakeEvents[ev] = struct{}{}
	}
	if duration > 0 {
		a.wakeAt = time.Now().UTC().Add(duration)
		a.sleepTimer = time.AfterFunc(duration, func() {
			a.Wake("timer")
		})
	} else {
		a.wakeAt = time.Time{}
	}
	return nil
}

// Wake moves a sleeping agent back to idle. It is idempotent: waking an
// agent that is not sleeping (including one whose timer already fired) is
// a no-op, and waking a stopped agent does nothing.
func (a *Agent) Wake(reason string) {
	a.mu.Lock()
	if a.state != StateSleeping {
		a.mu.Unlock()
		return
	}
	a.cancelTimerLocked()
	a.wakeAt = time.Time{}
	a.wakeEvents = nil
	a.state = StateIdle
	notify := a.idleNotifyLocked()
	a.mu.Unlock()

	log.Printf("agent %s woke (%s)", a.id, reason)
	if notify != nil {
		notify()
	}
}

// RaiseEvent wakes the agent only if it is sleeping and registered for
// the named event. Returns true if the event caused a wake.
func (a *Agent) RaiseEvent(event string) bool {
	a.mu.Lock()
	if a.state != StateSleeping {
		a.mu.Unlock()
		return false
	}
	_, registered := a.wakeEvents[event]
	a.mu.Unlock()

	if registered {
		a.Wake("event:" + event)
	}
	return registered
}

// Stop is terminal: it cancels any pending sleep timer, drains and
// discards queued mail, and rejects all further work. Stopping twice is
// a no-op.
func (a *Agent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateStopped {
		return
	}
	a.cancelTimerLocked()
	a.wakeAt = time.Time{}
	a.wakeEvents = nil
	a.state = StateStopped

	if discarded := a.mailbox.Clear(); discarded > 0 {
		log.Printf("agent %s stopped, discarded %d queued messages", a.id, discarded)
	}
}

// beginTask transitions Idle -> Processing. Sleeping agents must be woken
// first; stopped agents reject the task.
func (a *Agent) beginTask() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case StateStopped:
		return ErrAgentStopped
	case StateProcessing:
		return ErrAgentBusy
	case StateSleeping:
		return fmt.Errorf("%w: %s", ErrAgentSleeping, a.id)
	}
	a.state = StateProcessing
	return nil
}

// endTask transitions Processing -> Idle. A stop that raced the task wins.
// Mail that arrived while the task ran stays queued; the idle hook fires
// so the owner picks it up.
func (a *Agent) endTask() {
	a.mu.Lock()
	var notify func()
	if a.state == StateProcessing {
		a.state = StateIdle
		notify = a.idleNotifyLocked()
	}
	a.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// idleNotifyLocked returns the idle hook if it should fire: the agent
// just turned idle and mail is waiting. The check runs under a.mu, so a
// concurrent enqueue-then-dispatch either sees the mail here or finds
// the agent already idle when it tries to process.
func (a *Agent) idleNotifyLocked() func() {
	if a.onIdle != nil && a.mailbox.Len() > 0 {
		return a.onIdle
	}
	return nil
}

func (a *Agent) cancelTimerLocked() {
	if a.sleepTimer != nil {
		a.sleepTimer.Stop()
		a.sleepTimer = nil
	}
}
