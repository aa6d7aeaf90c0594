package emitter

// ExecutionState is the emitter instance's lifecycle state.
type ExecutionState uint8

const (
	// Active emitters spawn and simulate every frame.
	Active ExecutionState = iota
	// Inactive emitters stop spawning but keep simulating surviving
	// particles until none remain.
	Inactive
	// Disabled emitters were misconfigured at init and never tick.
	Disabled
	// Complete emitters have exhausted spawning and particles; they never
	// advance their dataset again.
	Complete
)

func (s ExecutionState) String() string {
	switch s {
	case Active:
		return "active"
	case Inactive:
		return "inactive"
	case Disabled:
		return "disabled"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}
