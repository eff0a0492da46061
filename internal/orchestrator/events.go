package orchestrator

import (
	"sync"
	"time"
)

// EventType identifies an orchestrator lifecycle or mail event.
type EventType string

const (
	EventAgentCreated  EventType = "agent.created"
	EventAgentStopped  EventType = "agent.stopped"
	EventAgentSwitched EventType = "agent.switched"
	EventTaskStarted   EventType = "async.task.started"
	EventTaskCompleted EventType = "async.task.completed"
	EventTaskError     EventType = "async.task.error"
)

// Event is one observable occurrence. Switched events carry From/To; task
// events carry AgentID and, for errors, the error kind and message.
type Event struct {
	Type      EventType      `json:"type"`
	AgentID   string         `json:"agent_id,omitempty"`
	From      string         `json:"from,omitempty"`
	To        string         `json:"to,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorKind string         `json:"error_kind,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Observer receives orchestrator events. Events are delivered
// synchronously in emission order; observers must not block.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(ev Event) { f(ev) }

// eventBus fans events out to subscribed observers.
type eventBus struct {
	mu        sync.RWMutex
	observers []Observer
}

func (b *eventBus) subscribe(obs Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, obs)
}

func (b *eventBus) emit(ev Event) {
	ev.Timestamp = time.Now().UTC()

	b.mu.RLock()
	observers := make([]Observer, len(b.observers))
	copy(observers, b.observers)
	b.mu.RUnlock()

	for _, obs := range observers {
		obs.OnEvent(ev)
	}
}
