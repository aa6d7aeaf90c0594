package system

import (
	"context"

	"go.uber.org/zap"

	ember "github.com/emberfx/ember"
	"github.com/emberfx/ember/collision"
	"github.com/emberfx/ember/emitter"
	"github.com/emberfx/ember/gputick"
)

// Instance is one running particle system: an ordered set of emitter
// instances sharing a collision batch and, when GPU emitters exist, a
// per-frame tick packet. All of an instance's emitters tick on one task.
type Instance struct {
	cfg  Config
	name string

	emitters []*emitter.Instance
	batch    *collision.Batch

	pending  *gputick.Pending
	released bool

	// onRelease is the pool-release hook run by the finalizing join once
	// every emitter has completed.
	onRelease func(*Instance)

	lastTickErrs []error
}

// NewInstance builds a system instance from emitter definitions, preserving
// declaration order. Misconfigured emitters come up Disabled and stay
// attached; they never tick.
func NewInstance(cfg Config, name string, defs ...*emitter.Definition) *Instance {
	si := &Instance{
		cfg:   cfg,
		name:  name,
		batch: collision.NewBatch(),
	}
	for _, def := range defs {
		e, err := emitter.NewInstance(def)
		if err != nil {
			Logger().Warn("emitter failed init",
				zap.String("system", name),
				zap.String("emitter", def.Name),
				zap.Error(err))
		}
		si.emitters = append(si.emitters, e)
	}
	return si
}

// Name returns the instance's debug name.
func (si *Instance) Name() string {
	return si.name
}

// Emitters returns the emitter instances in declaration order.
func (si *Instance) Emitters() []*emitter.Instance {
	return si.emitters
}

// Batch returns the instance's collision query batch.
func (si *Instance) Batch() *collision.Batch {
	return si.batch
}

// LastTickErrors returns the per-frame tick failures recorded by the most
// recent Tick. Failed emitters were skipped for that frame, not silently
// carried into the next.
func (si *Instance) LastTickErrors() []error {
	return si.lastTickErrs
}

// Tick advances the instance by one frame. Emitters run strictly in
// declaration order: PreTick across all, then Tick, then PostTick. A tick
// failure skips that emitter for the frame and is recorded.
//
// Any in-flight GPU tick from the previous frame is joined (non-finalizing)
// before the dataset is touched again.
func (si *Instance) Tick(ctx context.Context, clock ember.Clock, dispatcher *gputick.Dispatcher) {
	si.WaitForAsyncTick()
	si.lastTickErrs = si.lastTickErrs[:0]

	// Flip the trace buffers once per tick, then resolve last frame's
	// submissions so resolve-ray sites observe them this frame.
	si.batch.Tick()
	si.batch.ClearWrite()
	si.batch.PerformQueries()

	for _, e := range si.emitters {
		e.PreTick(clock)
	}

	if si.cfg.ExecutePrograms {
		for _, e := range si.emitters {
			// Tick itself skips instances that should not advance, and
			// demotes a drained Inactive instance to Complete on the way out.
			if err := e.Tick(ctx, clock); err != nil {
				si.lastTickErrs = append(si.lastTickErrs, err)
				Logger().Warn("emitter tick failed",
					zap.String("system", si.name),
					zap.String("emitter", e.Definition().Name),
					zap.Error(err))
			}
		}
		si.submitGPUTick(clock, dispatcher)
	}

	for _, e := range si.emitters {
		e.PostTick()
	}
}

// submitGPUTick packages the active GPU emitters and hands the packet to the
// dispatcher. Packaging while a previous packet from this instance is still
// in flight is a caller contract violation.
func (si *Instance) submitGPUTick(clock ember.Clock, dispatcher *gputick.Dispatcher) {
	if dispatcher == nil {
		return
	}
	if si.pending != nil && !si.pending.Done() {
		panic("system: GPU tick packaged while previous packet in flight")
	}

	for _, e := range si.emitters {
		gpu := e.GPUContext()
		if gpu == nil || e.State() == emitter.Complete {
			continue
		}
		params := gpu.Parameters()
		_ = params.SetInt32("gpu.num-existing", int32(e.Data().NumInstances()))
		_ = params.SetFloat32("gpu.delta", clock.Delta)
	}

	packet := gputick.Package(si.emitters)
	if packet == nil {
		return
	}
	si.pending = dispatcher.Submit(packet, runGPUTick, func() {
		si.handleEmitterCompletion()
	})
	if !si.cfg.AllowAsyncToEndOfFrame {
		si.pending.Join()
	}
}

// WaitForAsyncTick blocks until the in-flight GPU tick, if any, is safe to
// read. It never triggers completion or pool-release side effects.
func (si *Instance) WaitForAsyncTick() {
	if si.pending != nil {
		si.pending.Join()
	}
}

// FinalizeAsyncTick joins and runs the deferred completion path. Required
// before teardown when completion handling matters.
func (si *Instance) FinalizeAsyncTick() {
	if si.pending != nil {
		si.pending.Finalize()
		si.pending = nil
		return
	}
	si.handleEmitterCompletion()
}

func (si *Instance) handleEmitterCompletion() {
	for _, e := range si.emitters {
		if e.State() == emitter.Complete {
			e.HandleCompletion(false)
		}
	}
}

// SetReleaseHook installs the pool-release callback run once the instance
// completes.
func (si *Instance) SetReleaseHook(fn func(*Instance)) {
	si.onRelease = fn
}

// HandleCompletion reports whether every emitter has completed, running the
// release hook the first time it happens. With force, emitters are demoted
// first. Idempotent.
func (si *Instance) HandleCompletion(force bool) bool {
	done := true
	for _, e := range si.emitters {
		switch e.State() {
		case emitter.Complete:
			e.HandleCompletion(false)
		case emitter.Disabled:
			// never ticks, never blocks completion
		default:
			if force {
				e.HandleCompletion(true)
			} else {
				done = false
			}
		}
	}
	if !done {
		return false
	}
	if !si.released {
		si.released = true
		if si.onRelease != nil {
			si.onRelease(si)
		}
	}
	return true
}

// Destroy finalizes any in-flight tick and releases per-instance interface
// data. Deactivation mid-flight never aborts a pending tick; this join is
// where deferred teardown lands.
func (si *Instance) Destroy() {
	si.FinalizeAsyncTick()
	for _, e := range si.emitters {
		e.Destroy()
	}
}
