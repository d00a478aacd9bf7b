package read

// Status represents the state of a provider instance or playback session.
type Status int

const (
	// StatusIdle indicates nothing is playing or loading.
	StatusIdle Status = iota
	// StatusLoading indicates synthesis or model loading is in progress.
	StatusLoading
	// StatusSpeaking indicates audio is playing and boundaries are firing.
	StatusSpeaking
	// StatusPaused indicates playback is suspended and may be resumed.
	StatusPaused
	// StatusError indicates the last operation failed.
	StatusError
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSpeaking:
		return "speaking"
	case StatusPaused:
		return "paused"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// StateMachine guards status transitions for a provider instance. Stop and
// cancel may force idle from any state; everything else follows the table.
type StateMachine struct {
	current     Status
	transitions map[Status][]Status
}

// NewStateMachine creates a state machine starting at idle.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StatusIdle,
		transitions: map[Status][]Status{
			StatusIdle:     {StatusLoading, StatusSpeaking, StatusError},
			StatusLoading:  {StatusSpeaking, StatusIdle, StatusError},
			StatusSpeaking: {StatusPaused, StatusIdle, StatusError},
			StatusPaused:   {StatusSpeaking, StatusLoading, StatusIdle, StatusError},
			StatusError:    {StatusIdle, StatusLoading},
		},
	}
}

// Transition attempts to move to the given status and reports whether the
// transition was valid.
func (m *StateMachine) Transition(to Status) bool {
	if to == StatusIdle {
		// Stop/cancel is always allowed.
		m.current = StatusIdle
		return true
	}
	for _, s := range m.transitions[m.current] {
		if s == to {
			m.current = to
			return true
		}
	}
	return false
}

// Current returns the current status.
func (m *StateMachine) Current() Status {
	return m.current
}
