package ember

// SimTarget selects where an emitter's update program runs.
type SimTarget uint8

const (
	// SimTargetCPU executes the program on the simulation task each tick.
	SimTargetCPU SimTarget = iota
	// SimTargetGPU packages the program state into a tick packet consumed
	// asynchronously; results arrive through a latent readback.
	SimTargetGPU
)

func (t SimTarget) String() string {
	switch t {
	case SimTargetCPU:
		return "cpu"
	case SimTargetGPU:
		return "gpu"
	default:
		return "unknown"
	}
}

// Clock is the simulation clock value threaded through every tick call.
// There is no ambient global tick counter; whoever drives the frame owns
// the clock and passes it down.
type Clock struct {
	// Frame is the number of completed simulation frames.
	Frame uint64
	// Time is the accumulated simulation time in seconds.
	Time float64
	// Delta is the step for the current frame in seconds.
	Delta float32
}

// Advance returns the clock moved forward by dt seconds.
func (c Clock) Advance(dt float32) Clock {
	return Clock{
		Frame: c.Frame + 1,
		Time:  c.Time + float64(dt),
		Delta: dt,
	}
}

// Double is an explicit two-slot container for double-buffered state.
// One slot is readable (shared with the renderer or the prior tick's
// consumers), the other is writable (exclusively owned by the current
// producer). Swap flips the roles once per tick.
type Double[T any] struct {
	slots [2]T
	write int
}

// Read returns the readable slot.
func (d *Double[T]) Read() *T {
	return &d.slots[1-d.write]
}

// Write returns the writable slot.
func (d *Double[T]) Write() *T {
	return &d.slots[d.write]
}

// Swap flips which slot is writable and returns the index of the slot
// that is now readable.
func (d *Double[T]) Swap() int {
	d.write = 1 - d.write
	return 1 - d.write
}

// ReadIndex returns the index of the readable slot without flipping.
func (d *Double[T]) ReadIndex() int {
	return 1 - d.write
}

// Slot returns the slot at index i. Useful for iterating both buffers
// during reset.
func (d *Double[T]) Slot(i int) *T {
	return &d.slots[i]
}
