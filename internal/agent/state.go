package agent

// State is an agent's lifecycle position.
type State int

const (
	// StateIdle means the agent is registered and ready for a task.
	StateIdle State = iota

	// StateProcessing means a task's continuation loop is running.
	StateProcessing

	// StateSleeping means the agent is suspended until a wake timer
	// fires, a registered wake event is raised, or an explicit wake.
	StateSleeping

	// StateStopped is terminal. A stopped agent accepts no tasks or mail.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StateSleeping:
		return "sleeping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
