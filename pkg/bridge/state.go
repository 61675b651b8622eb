package bridge

// State tracks a bridge session's lifecycle. A session is born
// Connecting, becomes Active once the speech session is configured, and
// ends Closed. Connect failures skip straight to Closed.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var validTransitions = map[State][]State{
	StateConnecting: {StateActive, StateClosed},
	StateActive:     {StateClosing, StateClosed},
	StateClosing:    {StateClosed},
}

func transitionValid(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError represents an invalid state transition attempt.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid bridge transition from " + e.From.String() + " to " + e.To.String()
}
