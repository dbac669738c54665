package panel

// State is the phase of the panel's payment attempt
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateResolving
	StatePaying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateResolving:
		return "resolving"
	case StatePaying:
		return "paying"
	default:
		return "unknown"
	}
}
