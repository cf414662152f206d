package supervisor

// State is a stream's lifecycle position. Transitions only move forward:
// Starting to Running on the first successful frame or source open, Running
// to Draining on removal or source exhaustion, Draining to Stopped once the
// loop has exited and all sinks are torn down.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
