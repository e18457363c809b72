package driver

// State is the output driver lifecycle state.
type State int32

const (
	Connecting State = iota
	Idle
	Driving
	Effecting
	ShuttingDown
	Terminated
	// Stalled lights hold their last output: the active entry could not be
	// applied. The next change of the active entry retries.
	Stalled
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Idle:
		return "idle"
	case Driving:
		return "driving"
	case Effecting:
		return "effecting"
	case ShuttingDown:
		return "shutting-down"
	case Terminated:
		return "terminated"
	case Stalled:
		return "stalled"
	default:
		return "unknown"
	}
}
