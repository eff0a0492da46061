// Package orchestrator is the top-level registry that creates and stops
// agents, routes mail between their mailboxes, performs synchronous
// send-and-switch hand-offs, and fans lifecycle/mail events out to
// observers.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/agentcore-dev/agentcore/internal/agent"
	"github.com/agentcore-dev/agentcore/internal/mailbox"
	"github.com/agentcore-dev/agentcore/pkg/llm"
	"github.com/agentcore-dev/agentcore/pkg/observability"
)

var (
	// ErrAgentNotFound is returned for operations on an unknown agent id.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrAgentAlreadyExists is returned when creating a duplicate agent id.
	ErrAgentAlreadyExists = errors.New("agent already exists")

	// ErrMailTimeout is returned when a synchronous switch gets no reply
	// within its timeout.
	ErrMailTimeout = errors.New("mail switch timed out waiting for reply")
)

// WakeEventMailArrived is raised on a recipient when mail is enqueued, so
// agents sleeping on it wake to process their mailbox.
const WakeEventMailArrived = "mail_arrived"

// DefaultSwitchTimeout bounds a synchronous switch when the caller gives
// no timeout.
const DefaultSwitchTimeout = 30 * time.Second

// Options configures an Orchestrator.
type Options struct {
	// MaxHops is the mail chain depth limit for every agent's mailbox.
	// Zero falls back to the mailbox default.
	MaxHops int

	// SwitchTimeout is the default synchronous switch timeout.
	SwitchTimeout time.Duration
}

// Orchestrator owns the agent registry and all cross-agent plumbing. One
// instance serves the whole process; callers hold a handle, there are no
// package-level registries.
type Orchestrator struct {
	runtime *agent.Runtime
	opts    Options
	bus     eventBus

	mu     sync.RWMutex
	agents map[string]*agent.Agent

	pendingMu sync.Mutex
	pending   map[string]chan *mailbox.Message

	group errgroup.Group
}

// New creates an orchestrator driving agents with the given runtime.
func New(runtime *agent.Runtime, opts Options) *Orchestrator {
	if opts.SwitchTimeout <= 0 {
		opts.SwitchTimeout = DefaultSwitchTimeout
	}
	return &Orchestrator{
		runtime: runtime,
		opts:    opts,
		agents:  make(map[string]*agent.Agent),
		pending: make(map[string]chan *mailbox.Message),
	}
}

// Subscribe registers an observer for lifecycle and mail events.
func (o *Orchestrator) Subscribe(obs Observer) {
	o.bus.subscribe(obs)
}

// CreateAgent builds the AI collaborator from cfg and registers a new
// idle agent. Fails with ErrAgentAlreadyExists for a duplicate id.
func (o *Orchestrator) CreateAgent(id string, cfg llm.Config) (*agent.Agent, error) {
	collab, err := llm.NewCollaborator(cfg)
	if err != nil {
		return nil, fmt.Errorf("building collaborator for agent %s: %w", id, err)
	}
	return o.CreateAgentWith(id, collab)
}

// CreateAgentWith registers a new idle agent bound to a prebuilt
// collaborator.
func (o *Orchestrator) CreateAgentWith(id string, collab llm.Collaborator) (*agent.Agent, error) {
	o.mu.Lock()
	if _, exists := o.agents[id]; exists {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAgentAlreadyExists, id)
	}
	ag := agent.New(id, collab, o.opts.MaxHops)
	// Whenever the agent turns idle with mail still queued (a task ended,
	// or it woke from sleep), process the backlog in the background.
	ag.SetIdleHook(func() {
		o.group.Go(func() error {
			o.processMailbox(context.Background(), ag)
			return nil
		})
	})
	o.agents[id] = ag
	count := len(o.agents)
	o.mu.Unlock()

	observability.SetActiveAgents(count)
	o.bus.emit(Event{Type: EventAgentCreated, AgentID: id})
	return ag, nil
}

// StopAgent stops and unregisters an agent. Stop is terminal: pending
// sleep timers are cancelled and queued mail is discarded.
func (o *Orchestrator) StopAgent(id string) error {
	o.mu.Lock()
	ag, ok := o.agents[id]
	if ok {
		delete(o.agents, id)
	}
	count := len(o.agents)
	o.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	ag.Stop()
	observability.SetActiveAgents(count)
	o.bus.emit(Event{Type: EventAgentStopped, AgentID: id})
	return nil
}

// ListAgents returns the registered agent ids, sorted.
func (o *Orchestrator) ListAgents() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	ids := make([]string, 0, len(o.agents))
	for id := range o.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AgentCount returns the number of registered agents.
func (o *Orchestrator) AgentCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.agents)
}

// GetState returns the agent's externally visible state.
func (o *Orchestrator) GetState(id string) (agent.Snapshot, error) {
	ag, err := o.lookup(id)
	if err != nil {
		return agent.Snapshot{}, err
	}
	return ag.Snapshot(), nil
}

// SendTask runs the agent's continuation loop for the prompt and returns
// the structured result. Collaborator failures are surfaced on the result
// and mirrored as an async.task.error event.
func (o *Orchestrator) SendTask(ctx context.Context, id, sessionID, prompt string) (*agent.TaskResult, error) {
	ag, err := o.lookup(id)
	if err != nil {
		return nil, err
	}

	o.bus.emit(Event{Type: EventTaskStarted, AgentID: id})
	start := time.Now()
	result, err := o.runtime.RunTask(ctx, ag, sessionID, prompt)
	if err != nil {
		observability.RecordTask(id, "error", time.Since(start), iterations(result))
		o.emitTaskError(id, err)
		return result, err
	}
	observability.RecordTask(id, "ok", time.Since(start), result.Iterations)
	o.bus.emit(Event{Type: EventTaskCompleted, AgentID: id, Detail: map[string]any{
		"iterations": result.Iterations,
	}})
	return result, nil
}

// Sleep suspends the agent for a duration and/or until one of the named
// wake events is raised.
func (o *Orchestrator) Sleep(id string, duration time.Duration, wakeEvents []string) error {
	ag, err := o.lookup(id)
	if err != nil {
		return err
	}
	return ag.Sleep(duration, wakeEvents)
}

// Wake moves a sleeping agent back to idle; waking an awake agent is a
// no-op.
func (o *Orchestrator) Wake(id, reason string) error {
	ag, err := o.lookup(id)
	if err != nil {
		return err
	}
	ag.Wake(reason)
	return nil
}

// SendMail is fire-and-forget delivery: the message is enqueued onto the
// recipient's mailbox and the call returns immediately. The mailbox is
// processed in the background as soon as the recipient is idle; a busy
// recipient keeps the message queued and picks it up when its current
// task ends, a sleeping one when it wakes.
func (o *Orchestrator) SendMail(from, to, subject, body string) error {
	recipient, err := o.deliver(mailbox.NewMessage(from, to, subject, body, mailbox.ModeAsync))
	if err != nil {
		return err
	}
	observability.RecordMail(string(mailbox.ModeAsync))

	o.group.Go(func() error {
		o.processMailbox(context.Background(), recipient)
		return nil
	})
	return nil
}

// SendMailWithSwitch is the synchronous hand-off: it enqueues the
// message, wakes the recipient to process its mailbox, and blocks until a
// correlated reply arrives or the timeout elapses with ErrMailTimeout.
//
// On success the observable event order is exactly switched(from->to)
// then switched(to->from). On timeout no switched(to->from) event is ever
// emitted and a late reply is discarded.
func (o *Orchestrator) SendMailWithSwitch(ctx context.Context, from, to, subject, body string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = o.opts.SwitchTimeout
	}

	ctx, span := observability.StartSpan(ctx, "mail.switch", map[string]any{
		"from": from,
		"to":   to,
	})
	defer span.End()

	msg := mailbox.NewMessage(from, to, subject, body, mailbox.ModeSyncSwitch)
	msg.CorrelationID = uuid.New().String()

	replyCh := make(chan *mailbox.Message, 1)
	o.pendingMu.Lock()
	o.pending[msg.CorrelationID] = replyCh
	o.pendingMu.Unlock()
	defer o.forgetPending(msg.CorrelationID)

	recipient, err := o.deliver(msg)
	if err != nil {
		return "", err
	}
	observability.RecordMail(string(mailbox.ModeSyncSwitch))

	// A switch always wakes the recipient, registered wake event or not.
	recipient.Wake(WakeEventMailArrived)

	start := time.Now()
	o.bus.emit(Event{Type: EventAgentSwitched, From: from, To: to})

	o.group.Go(func() error {
		o.processMailbox(context.Background(), recipient)
		return nil
	})

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-replyCh:
		observability.RecordSwitch("ok", time.Since(start))
		o.bus.emit(Event{Type: EventAgentSwitched, From: to, To: from})
		return reply.Body, nil
	case <-timer.C:
		observability.RecordSwitch("timeout", time.Since(start))
		err := fmt.Errorf("%w (%s -> %s after %s)", ErrMailTimeout, from, to, timeout)
		o.emitTaskError(from, err)
		return "", err
	case <-ctx.Done():
		observability.RecordSwitch("cancelled", time.Since(start))
		return "", ctx.Err()
	}
}

// Shutdown stops every agent and waits for background mail processing to
// finish or the context to expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	for _, id := range o.ListAgents() {
		if err := o.StopAgent(id); err != nil && !errors.Is(err, ErrAgentNotFound) {
			return err
		}
	}

	done := make(chan error, 1)
	go func() { done <- o.group.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) lookup(id string) (*agent.Agent, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	ag, ok := o.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return ag, nil
}

// deliver validates both endpoints, enqueues the message, and raises the
// mail-arrived wake event on the recipient.
func (o *Orchestrator) deliver(msg *mailbox.Message) (*agent.Agent, error) {
	if _, err := o.lookup(msg.From); err != nil {
		return nil, err
	}
	recipient, err := o.lookup(msg.To)
	if err != nil {
		return nil, err
	}
	if recipient.State() == agent.StateStopped {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, msg.To)
	}

	if err := recipient.Mailbox().Enqueue(msg); err != nil {
		return nil, err
	}
	recipient.RaiseEvent(WakeEventMailArrived)
	return recipient, nil
}

// processMailbox drains the recipient's mailbox through the runtime and
// hands any sync-switch replies to their blocked callers. A reply whose
// caller already timed out is discarded. A busy or sleeping recipient is
// left alone: its mail stays queued and the agent's idle hook schedules
// another pass once the task slot frees up.
func (o *Orchestrator) processMailbox(ctx context.Context, ag *agent.Agent) {
	replies, err := o.runtime.ProcessMail(ctx, ag, mailSession(ag.ID()))
	switch {
	case err == nil:
	case errors.Is(err, agent.ErrAgentBusy), errors.Is(err, agent.ErrAgentSleeping):
		return
	case errors.Is(err, agent.ErrAgentStopped):
		return
	default:
		o.emitTaskError(ag.ID(), err)
	}
	for _, reply := range replies {
		o.pendingMu.Lock()
		ch, ok := o.pending[reply.CorrelationID]
		if ok {
			delete(o.pending, reply.CorrelationID)
		}
		o.pendingMu.Unlock()

		if !ok {
			log.Printf("discarding stale reply %s (caller gone)", reply.ID[:8])
			continue
		}
		ch <- reply
	}
}

func (o *Orchestrator) forgetPending(correlationID string) {
	o.pendingMu.Lock()
	delete(o.pending, correlationID)
	o.pendingMu.Unlock()
}

func (o *Orchestrator) emitTaskError(agentID string, err error) {
	o.bus.emit(Event{
		Type:      EventTaskError,
		AgentID:   agentID,
		Error:     err.Error(),
		ErrorKind: errorKind(err),
	})
}

// mailSession scopes channel output produced while processing an agent's
// mailbox.
func mailSession(agentID string) string {
	return "mail:" + agentID
}

func errorKind(err error) string {
	var collabErr *llm.CollaboratorError
	switch {
	case errors.Is(err, ErrAgentNotFound):
		return "agent_not_found"
	case errors.Is(err, ErrAgentAlreadyExists):
		return "agent_already_exists"
	case errors.Is(err, ErrMailTimeout):
		return "mail_timeout"
	case errors.Is(err, mailbox.ErrCircularMail):
		return "circular_mail"
	case errors.Is(err, agent.ErrInvalidDuration):
		return "invalid_duration"
	case errors.Is(err, agent.ErrAgentStopped):
		return "agent_stopped"
	case errors.As(err, &collabErr):
		return "ai_collaborator"
	default:
		return "internal"
	}
}

func iterations(result *agent.TaskResult) int {
	if result == nil {
		return 0
	}
	return result.Iterations
}
