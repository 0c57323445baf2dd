package usecase

// EngineState is the lifecycle position of an Engine.
type EngineState int32

const (
	StateNotStarted EngineState = iota
	// StateIdle means the engine started without a sender: the outbox accepts messages but nothing is dispatched.
	StateIdle
	StateRunning
	StateStopping
	StateStopped
)

func (s EngineState) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
