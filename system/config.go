package system

import "runtime"

// Config holds the scheduler's behavior toggles, passed at construction.
type Config struct {
	// ExecutePrograms gates VM execution. When false the pipeline still
	// runs spawn bookkeeping and state transitions, useful for isolating
	// scheduling bugs from program bugs.
	ExecutePrograms bool

	// AllowAsyncToEndOfFrame lets an in-flight GPU tick run until the end
	// of the frame instead of being joined at the start of the next
	// instance tick.
	AllowAsyncToEndOfFrame bool

	// Workers sizes the pool system instances fan out across. Zero means
	// GOMAXPROCS.
	Workers int
}

// DefaultConfig enables execution with end-of-frame async joins.
func DefaultConfig() Config {
	return Config{
		ExecutePrograms:        true,
		AllowAsyncToEndOfFrame: true,
	}
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}
