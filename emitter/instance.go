package emitter

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	ember "github.com/emberfx/ember"
	"github.com/emberfx/ember/datainterface"
	"github.com/emberfx/ember/dataset"
	"github.com/emberfx/ember/errors"
	"github.com/emberfx/ember/script"
)

// MaxEventSpawnsPerHandler bounds a single handler's spawn count per frame.
// A pathological event burst truncates to this rather than allocating
// without bound.
const MaxEventSpawnsPerHandler = 64

// SpawnInfo is one group of particles to spawn this frame.
type SpawnInfo struct {
	Count int
	// InterpStart is the sub-frame offset of the group's first particle,
	// in [0,1) of the frame delta.
	InterpStart float32
	// IntervalDt is the sub-frame spacing between consecutive particles.
	IntervalDt float32
	SpawnGroup int
}

// Instance is one running simulation of a single particle population. It
// owns exactly one dataset and the execution contexts that write into it.
type Instance struct {
	def   *Definition
	state ExecutionState

	tickCount    uint64
	age          float32
	totalSpawned int64

	data  *dataset.Dataset
	arena *datainterface.Arena

	spawnCtx  *script.ExecutionContext
	updateCtx *script.ExecutionContext
	gpuCtx    *script.ExecutionContext

	events []*eventHandler

	spawnInfos   []SpawnInfo
	spawnAcc     float32
	burstFired   []bool
	deferredReset bool

	completionHandled bool

	// gpuCount is the latent readback for GPU emitters: it reflects the
	// last completed async tick, not the in-flight one.
	gpuCount atomic.Int64
}

// NewInstance builds an instance from a compiled definition. A misconfigured
// definition yields a Disabled instance together with the validation error;
// the owner may keep it (it never ticks) or drop it.
func NewInstance(def *Definition) (*Instance, error) {
	inst := &Instance{
		def:   def,
		state: Disabled,
		arena: datainterface.NewArena(),
	}
	if err := def.validate(); err != nil {
		Logger().Warn("emitter disabled",
			zap.String("emitter", def.Name),
			zap.Error(err))
		return inst, err
	}

	inst.data = dataset.New(def.Name, def.Target, def.Name+".particles")
	if def.PersistentIDs {
		if err := inst.data.RequirePersistentIDs(); err != nil {
			return inst, err
		}
	}
	for _, v := range def.Variables {
		if err := inst.data.AddVariable(v.Name, v.Type); err != nil {
			return inst, err
		}
	}
	if err := inst.data.Finalize(); err != nil {
		return inst, err
	}

	inst.spawnCtx = script.NewContext(def.Name + ".spawn")
	if err := inst.spawnCtx.Init(def.SpawnProgram, def.Target); err != nil {
		return inst, err
	}
	inst.spawnCtx.SetDataInterfaces(def.Interfaces, inst.arena)

	switch def.Target {
	case ember.SimTargetCPU:
		inst.updateCtx = script.NewContext(def.Name + ".update")
		if err := inst.updateCtx.Init(def.UpdateProgram, def.Target); err != nil {
			return inst, err
		}
		inst.updateCtx.SetDataInterfaces(def.Interfaces, inst.arena)
	case ember.SimTargetGPU:
		inst.gpuCtx = script.NewContext(def.Name + ".gpu")
		if err := inst.gpuCtx.Init(def.GPUProgram, def.Target); err != nil {
			return inst, err
		}
		inst.gpuCtx.SetDataInterfaces(def.Interfaces, inst.arena)
	}

	for _, ev := range def.Events {
		h, err := newEventHandler(def, ev, inst.arena)
		if err != nil {
			return inst, err
		}
		inst.events = append(inst.events, h)
	}

	if err := inst.arena.InitAll(); err != nil {
		return inst, err
	}

	inst.burstFired = make([]bool, len(def.Bursts))
	inst.state = Active
	return inst, nil
}

// Definition returns the cached compiled definition.
func (e *Instance) Definition() *Definition {
	return e.def
}

// State returns the current execution state.
func (e *Instance) State() ExecutionState {
	return e.state
}

// Age returns the emitter age in seconds.
func (e *Instance) Age() float32 {
	return e.age
}

// TickCount returns how many ticks have run since the last reset.
func (e *Instance) TickCount() uint64 {
	return e.tickCount
}

// TotalSpawned returns the cumulative spawn counter since the last reset.
func (e *Instance) TotalSpawned() int64 {
	return e.totalSpawned
}

// Data returns the particle dataset.
func (e *Instance) Data() *dataset.Dataset {
	return e.data
}

// GPUContext returns the GPU execution context, nil for CPU emitters.
func (e *Instance) GPUContext() *script.ExecutionContext {
	return e.gpuCtx
}

// UpdateContext returns the CPU update context, nil for GPU emitters.
func (e *Instance) UpdateContext() *script.ExecutionContext {
	return e.updateCtx
}

// SpawnContext returns the spawn context.
func (e *Instance) SpawnContext() *script.ExecutionContext {
	return e.spawnCtx
}

// SpawnInfos returns this frame's spawn groups, valid between PreTick and
// PostTick.
func (e *Instance) SpawnInfos() []SpawnInfo {
	return e.spawnInfos
}

// EventSet returns the event dataset owned by the named handler, nil when no
// such handler exists.
func (e *Instance) EventSet(name string) *dataset.Dataset {
	for _, h := range e.events {
		if h.def.Name == name {
			return h.events
		}
	}
	return nil
}

// GetNumParticles returns the live particle count. For GPU emitters this is
// latent: it reflects the last completed readback, not the in-flight tick.
func (e *Instance) GetNumParticles() int {
	if e.def.Target == ember.SimTargetGPU {
		return int(e.gpuCount.Load())
	}
	return e.data.NumInstances()
}

// SetGPUReadback stores a completed async tick's particle count. Called from
// the dispatcher's completion path.
func (e *Instance) SetGPUReadback(count int) {
	e.gpuCount.Store(int64(count))
}

// ShouldTick reports whether the instance advances this frame: while Active,
// or while surviving particles remain. Complete and Disabled instances never
// advance their dataset.
func (e *Instance) ShouldTick() bool {
	switch e.state {
	case Disabled, Complete:
		return false
	case Active:
		return true
	default:
		return e.GetNumParticles() > 0
	}
}

// Deactivate stops spawning. Surviving particles keep simulating; an
// in-flight GPU tick is not aborted, teardown waits for the pending join.
func (e *Instance) Deactivate() {
	if e.state == Active {
		e.state = Inactive
	}
}

// Activate resumes spawning on an Inactive instance.
func (e *Instance) Activate() {
	if e.state == Inactive {
		e.state = Active
	}
}

// ResetSimulation requests a return to the initial spawn state. The reset is
// deferred to the next PreTick, never applied mid-tick, because downstream
// buffers may still be read by the render thread.
func (e *Instance) ResetSimulation() {
	e.deferredReset = true
}

func (e *Instance) resetNow() {
	e.data.ResetBuffers()
	for _, h := range e.events {
		h.events.ResetBuffers()
		h.pendingSpawn = 0
	}
	e.age = 0
	e.tickCount = 0
	e.totalSpawned = 0
	e.spawnAcc = 0
	e.spawnInfos = e.spawnInfos[:0]
	for i := range e.burstFired {
		e.burstFired[i] = false
	}
	e.gpuCount.Store(0)
	if e.state != Disabled {
		e.state = Active
		e.completionHandled = false
	}
	e.deferredReset = false
}

// PreTick computes this frame's spawn counts from the spawn rate, pending
// bursts and event-triggered requests. The deferred-reset flag is honored
// here.
func (e *Instance) PreTick(clock ember.Clock) {
	if e.state == Disabled || e.state == Complete {
		return
	}
	if e.deferredReset {
		e.resetNow()
	}
	if e.arena.TickAll(clock) {
		e.resetNow()
	}

	e.spawnInfos = e.spawnInfos[:0]
	if e.state != Active {
		return
	}

	dt := clock.Delta
	if e.def.SpawnRate > 0 && dt > 0 {
		e.spawnAcc += e.def.SpawnRate * dt
		count := int(e.spawnAcc)
		e.spawnAcc -= float32(count)
		if count > 0 {
			interval := 1 / (e.def.SpawnRate * dt)
			e.spawnInfos = append(e.spawnInfos, SpawnInfo{
				Count:       count,
				InterpStart: e.spawnAcc * interval,
				IntervalDt:  interval,
				SpawnGroup:  0,
			})
		}
	}

	next := e.age + dt
	for i, b := range e.def.Bursts {
		if e.burstFired[i] || b.Count <= 0 {
			continue
		}
		if b.Time >= e.age && b.Time < next || (b.Time <= 0 && e.tickCount == 0) {
			e.burstFired[i] = true
			e.spawnInfos = append(e.spawnInfos, SpawnInfo{
				Count:      b.Count,
				SpawnGroup: 1 + i,
			})
		}
	}

	for _, h := range e.events {
		h.pendingSpawn = e.CalculateEventSpawnCount(h)
	}
}

// CalculateEventSpawnCount reads the handler's event dataset record count
// and applies its spawn policy. The result is capped by a small inline
// bound so a pathological event burst cannot force unbounded allocation.
func (e *Instance) CalculateEventSpawnCount(h *eventHandler) int {
	numEvents := h.events.NumInstances()
	if numEvents == 0 {
		return 0
	}
	var count int
	switch h.def.Policy.Mode {
	case FixedBurst:
		count = h.def.Policy.BurstCount
	default:
		count = numEvents
	}
	if count > MaxEventSpawnsPerHandler {
		count = MaxEventSpawnsPerHandler
	}
	return count
}

// Tick advances the emitter by one frame. Contexts run strictly in order:
// spawn, update, then each event handler in declaration order. On any
// context failure the dataset buffers are not swapped, leaving the instance
// in its pre-tick state.
func (e *Instance) Tick(ctx context.Context, clock ember.Clock) error {
	if !e.ShouldTick() {
		// An Inactive instance with no survivors still has to demote to
		// Complete, or it stays scheduled forever.
		e.maybeComplete()
		return nil
	}
	e.tickCount++
	e.age += clock.Delta

	if e.def.Target == ember.SimTargetGPU {
		// The update execution is replaced by a packaging step the owning
		// system performs; results return asynchronously.
		e.maybeComplete()
		return nil
	}
	if err := e.tickCPU(ctx, clock); err != nil {
		return err
	}
	e.maybeComplete()
	return nil
}

func (e *Instance) tickCPU(ctx context.Context, clock ember.Clock) error {
	for _, c := range []*script.ExecutionContext{e.spawnCtx, e.updateCtx} {
		if params := c.Parameters(); params != nil {
			// Standard uniforms; programs that do not declare them ignore
			// the writes.
			_ = params.SetFloat32("emitter.delta", clock.Delta)
			_ = params.SetFloat32("emitter.age", e.age)
		}
	}

	numCur := e.data.NumInstances()
	spawnTotal := 0
	for _, info := range e.spawnInfos {
		spawnTotal += info.Count
	}
	eventTotal := 0
	for _, h := range e.events {
		eventTotal += h.pendingSpawn
	}

	maxP := e.def.maxParticles()
	if numCur+spawnTotal+eventTotal > maxP {
		over := numCur + spawnTotal + eventTotal - maxP
		eventTotal = clampSub(eventTotal, &over)
		spawnTotal = clampSub(spawnTotal, &over)
	}

	dst := e.data.BeginSimulate(numCur + spawnTotal + eventTotal)
	if dst == nil {
		return errors.NotInitialized(errors.PhaseTick, e.def.Name+".particles")
	}

	// Spawn pass: initialize new records after the surviving ones.
	written := 0
	remaining := spawnTotal
	for _, info := range e.spawnInfos {
		count := info.Count
		if count > remaining {
			count = remaining
		}
		if count <= 0 {
			continue
		}
		if err := e.runSpawn(ctx, info, numCur+written, count); err != nil {
			return err
		}
		written += count
		remaining -= count
	}

	// Update pass over surviving records: reads current, writes destination.
	if err := e.updateCtx.Tick(); err != nil {
		return err
	}
	if err := e.updateCtx.BindData(0, e.data, 0, true); err != nil {
		return err
	}
	alive, err := e.updateCtx.Execute(ctx, numCur)
	if err != nil {
		return err
	}

	// Compact spawned records down over any records the update killed.
	if alive < numCur && written > 0 {
		for i := 0; i < written; i++ {
			dst.CopyRecord(alive+i, dst, numCur+i)
		}
	}

	// Update pass over newly spawned records, fed by the spawn outputs.
	spawnAlive := 0
	if written > 0 {
		if err := e.updateCtx.BindDataFromDestination(0, e.data, alive, false); err != nil {
			return err
		}
		spawnAlive, err = e.updateCtx.Execute(ctx, written)
		if err != nil {
			return err
		}
	}
	total := alive + spawnAlive

	// Event handlers, declaration order.
	for _, h := range e.events {
		count := h.pendingSpawn
		if count > eventTotal {
			count = eventTotal
		}
		if count <= 0 {
			continue
		}
		spawned, err := h.run(ctx, e.data, total, count)
		if err != nil {
			return err
		}
		total += spawned
		eventTotal -= count
		e.totalSpawned += int64(spawned)
	}

	e.totalSpawned += int64(written)
	e.data.EndSimulate(total)
	return nil
}

func (e *Instance) runSpawn(ctx context.Context, info SpawnInfo, start, count int) error {
	params := e.spawnCtx.Parameters()
	// Best effort: programs that do not declare these uniforms ignore them.
	_ = params.SetFloat32("spawn.interp-start", info.InterpStart)
	_ = params.SetFloat32("spawn.interval", info.IntervalDt)
	_ = params.SetInt32("spawn.group", int32(info.SpawnGroup))

	if err := e.spawnCtx.Tick(); err != nil {
		return err
	}
	if err := e.spawnCtx.BindData(0, e.data, start, false); err != nil {
		return err
	}
	if _, err := e.spawnCtx.Execute(ctx, count); err != nil {
		return err
	}
	if e.def.PersistentIDs {
		ids := e.data.GetDestinationData().IntChannel("ID")
		for i := start; i < start+count && i < len(ids); i++ {
			ids[i] = e.data.AcquireID()
		}
	}
	return nil
}

func clampSub(v int, over *int) int {
	if *over <= 0 {
		return v
	}
	cut := v
	if cut > *over {
		cut = *over
	}
	*over -= cut
	return v - cut
}

// maybeComplete demotes an Active or Inactive emitter to Complete once spawn
// is exhausted and the record count has reached zero.
func (e *Instance) maybeComplete() {
	if e.state != Active && e.state != Inactive {
		return
	}
	if e.GetNumParticles() > 0 {
		return
	}
	if e.state == Active && e.canSpawn() {
		return
	}
	e.state = Complete
	Logger().Debug("emitter complete", zap.String("emitter", e.def.Name))
}

func (e *Instance) canSpawn() bool {
	if e.def.Target == ember.SimTargetGPU && len(e.spawnInfos) > 0 {
		// This frame's spawn request is consumed asynchronously; the packet
		// has not run yet.
		return true
	}
	if e.def.SpawnRate > 0 {
		return true
	}
	for i := range e.def.Bursts {
		if !e.burstFired[i] {
			return true
		}
	}
	for _, h := range e.events {
		if h.pendingSpawn > 0 || h.events.NumInstances() > 0 {
			return true
		}
	}
	return false
}

// PostTick copies current-frame parameter values into previous-frame slots
// for velocity and motion-blur dependent interfaces, and clears the frame's
// spawn bookkeeping.
func (e *Instance) PostTick() {
	if e.state == Disabled {
		return
	}
	for _, c := range []*script.ExecutionContext{e.spawnCtx, e.updateCtx, e.gpuCtx} {
		if c != nil && c.Parameters() != nil {
			c.Parameters().CapturePrevious()
		}
	}
	for _, h := range e.events {
		if h.ctx.Parameters() != nil {
			h.ctx.Parameters().CapturePrevious()
		}
		// Events are consumed each frame.
		h.events.ResetBuffers()
		h.pendingSpawn = 0
	}
	e.spawnInfos = e.spawnInfos[:0]
}

// HandleCompletion finalizes a Complete instance. With force it demotes the
// instance first. Idempotent: calling it on an already-handled instance is a
// no-op returning true.
func (e *Instance) HandleCompletion(force bool) bool {
	if force && e.state != Complete {
		e.state = Complete
	}
	if e.state != Complete {
		return false
	}
	if e.completionHandled {
		return true
	}
	e.completionHandled = true
	e.spawnInfos = e.spawnInfos[:0]
	Logger().Debug("emitter completion handled", zap.String("emitter", e.def.Name))
	return true
}

// Destroy releases the per-instance interface data. The owning system calls
// it after completion has been signaled; the instance must not tick again.
func (e *Instance) Destroy() {
	e.arena.DestroyAll()
}
