package system

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	ember "github.com/emberfx/ember"
	"github.com/emberfx/ember/datainterface"
	"github.com/emberfx/ember/dataset"
	"github.com/emberfx/ember/emitter"
	"github.com/emberfx/ember/errors"
	"github.com/emberfx/ember/gputick"
	"github.com/emberfx/ember/vm"
)

func keepAll(name string, hook func()) *vm.FuncProgram {
	return &vm.FuncProgram{
		Name: name,
		Run: func(_ context.Context, in *vm.ExecInput) (vm.ExecResult, error) {
			if hook != nil {
				hook()
			}
			return vm.ExecResult{NumInstancesOut: in.NumInstances}, nil
		},
	}
}

func failing(name string) *vm.FuncProgram {
	return &vm.FuncProgram{
		Name: name,
		Run: func(_ context.Context, in *vm.ExecInput) (vm.ExecResult, error) {
			return vm.ExecResult{}, errors.InvalidInput(errors.PhaseExecute, "deliberate failure")
		},
	}
}

func oneBurstDef(name string, count int, spawn, update *vm.FuncProgram) *emitter.Definition {
	return &emitter.Definition{
		Name:          name,
		Variables:     []dataset.Variable{{Name: "Position", Type: dataset.Vec3}},
		Bursts:        []emitter.Burst{{Time: 0, Count: count}},
		SpawnProgram:  spawn,
		UpdateProgram: update,
	}
}

func TestInstance_EmittersTickInDeclarationOrder(t *testing.T) {
	var order []string
	si := NewInstance(Config{ExecutePrograms: true}, "ordered",
		oneBurstDef("first", 1,
			keepAll("first.spawn", func() { order = append(order, "first") }),
			keepAll("first.update", nil)),
		oneBurstDef("second", 1,
			keepAll("second.spawn", func() { order = append(order, "second") }),
			keepAll("second.update", nil)),
	)

	si.Tick(context.Background(), ember.Clock{}.Advance(0.1), nil)

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("spawn order = %v, want [first second]", order)
	}
}

func TestInstance_TickFailureSkipsEmitterAndRecords(t *testing.T) {
	si := NewInstance(Config{ExecutePrograms: true}, "mixed",
		oneBurstDef("bad", 1, failing("bad.spawn"), keepAll("bad.update", nil)),
		oneBurstDef("good", 3, keepAll("good.spawn", nil), keepAll("good.update", nil)),
	)
	clock := ember.Clock{}.Advance(0.1)
	si.Tick(context.Background(), clock, nil)

	if got := len(si.LastTickErrors()); got != 1 {
		t.Fatalf("recorded %d tick errors, want 1", got)
	}
	bad, good := si.Emitters()[0], si.Emitters()[1]
	if bad.GetNumParticles() != 0 {
		t.Fatal("failed emitter must keep its pre-tick state")
	}
	if good.GetNumParticles() != 3 {
		t.Fatalf("healthy emitter spawned %d, want 3", good.GetNumParticles())
	}

	// The failure is per-frame: next tick starts with a clean slate.
	clock = clock.Advance(0.1)
	si.Tick(context.Background(), clock, nil)
	if got := len(si.LastTickErrors()); got != 0 {
		t.Fatalf("errors carried into next frame: %d", got)
	}
}

func TestInstance_ExecuteProgramsOffStillAdvancesState(t *testing.T) {
	ran := false
	si := NewInstance(Config{ExecutePrograms: false}, "dry",
		oneBurstDef("e", 5,
			keepAll("e.spawn", func() { ran = true }),
			keepAll("e.update", nil)),
	)
	si.Tick(context.Background(), ember.Clock{}.Advance(0.1), nil)

	if ran {
		t.Fatal("programs must not execute with ExecutePrograms off")
	}
	if si.Emitters()[0].GetNumParticles() != 0 {
		t.Fatal("no particles should exist without execution")
	}
}

func TestInstance_MisconfiguredEmitterStaysAttachedDisabled(t *testing.T) {
	si := NewInstance(Config{ExecutePrograms: true}, "partial",
		&emitter.Definition{Name: "broken"},
		oneBurstDef("ok", 2, keepAll("ok.spawn", nil), keepAll("ok.update", nil)),
	)
	if len(si.Emitters()) != 2 {
		t.Fatalf("emitters = %d, want both attached", len(si.Emitters()))
	}
	if si.Emitters()[0].State() != emitter.Disabled {
		t.Fatalf("state = %v, want Disabled", si.Emitters()[0].State())
	}

	si.Tick(context.Background(), ember.Clock{}.Advance(0.1), nil)
	if si.Emitters()[1].GetNumParticles() != 2 {
		t.Fatal("healthy emitter must tick alongside the disabled one")
	}
}

func TestInstance_CollisionQueriesResolveNextFrame(t *testing.T) {
	si := NewInstance(Config{ExecutePrograms: true}, "traced")

	id := si.Batch().SubmitQuery(nil, mgl32.Vec3{}, mgl32.Vec3{0, -1, 0}, 0)
	if _, ok := si.Batch().GetQueryResult(id); ok {
		t.Fatal("query resolved in the frame it was submitted")
	}

	si.Tick(context.Background(), ember.Clock{}.Advance(0.1), nil)
	if _, ok := si.Batch().GetQueryResult(id); !ok {
		t.Fatal("query should resolve on the next frame's tick")
	}
}

func TestInstance_ReleaseHookRunsOnce(t *testing.T) {
	si := NewInstance(Config{ExecutePrograms: true}, "oneshot",
		oneBurstDef("e", 4, keepAll("e.spawn", nil),
			&vm.FuncProgram{
				Name: "e.kill",
				Run: func(_ context.Context, in *vm.ExecInput) (vm.ExecResult, error) {
					return vm.ExecResult{}, nil
				},
			}),
	)
	released := 0
	si.SetReleaseHook(func(*Instance) { released++ })

	si.Tick(context.Background(), ember.Clock{}.Advance(0.1), nil)
	if si.Emitters()[0].State() != emitter.Complete {
		t.Fatalf("state = %v, want Complete", si.Emitters()[0].State())
	}

	if !si.HandleCompletion(false) {
		t.Fatal("completion should be reported once every emitter is done")
	}
	if !si.HandleCompletion(false) {
		t.Fatal("repeated completion must stay true")
	}
	if released != 1 {
		t.Fatalf("release hook ran %d times, want once", released)
	}
}

func TestInstance_GPUReadbackIsLatent(t *testing.T) {
	def := &emitter.Definition{
		Name:         "gpu",
		Target:       ember.SimTargetGPU,
		Variables:    []dataset.Variable{{Name: "Position", Type: dataset.Vec3}},
		Bursts:       []emitter.Burst{{Time: 0, Count: 10}},
		SpawnProgram: keepAll("gpu.spawn", nil),
		GPUProgram:   keepAll("gpu.sim", nil),
	}

	// Without a dispatcher nothing consumes the packet: the emitter ticks
	// but its readback never arrives.
	si := NewInstance(Config{ExecutePrograms: true}, "gpu-nodisp", def)
	si.Tick(context.Background(), ember.Clock{}.Advance(0.1), nil)
	if got := si.Emitters()[0].GetNumParticles(); got != 0 {
		t.Fatalf("count = %d before any readback, want 0", got)
	}

	// With a dispatcher and synchronous joins the readback lands within the
	// frame.
	si2 := NewInstance(Config{ExecutePrograms: true}, "gpu-sync", def)
	d := gputick.NewDispatcher()
	defer d.Close()
	si2.Tick(context.Background(), ember.Clock{}.Advance(0.1), d)
	si2.WaitForAsyncTick()
	if got := si2.Emitters()[0].GetNumParticles(); got != 10 {
		t.Fatalf("count = %d after readback, want 10", got)
	}
}

func TestSimulation_DeactivatedEmptyInstanceLeavesSchedule(t *testing.T) {
	s := NewSimulation(Config{ExecutePrograms: true, Workers: 1})
	defer s.Close()

	si := NewInstance(s.cfg, "idle", &emitter.Definition{
		Name:          "idle",
		Variables:     []dataset.Variable{{Name: "Position", Type: dataset.Vec3}},
		SpawnRate:     25,
		SpawnProgram:  keepAll("idle.spawn", nil),
		UpdateProgram: keepAll("idle.update", nil),
	})
	si.Emitters()[0].Deactivate()
	s.AddInstance(si)

	// Nothing ever spawned and spawning is off: the emitter must demote to
	// Complete and the instance must not stay scheduled forever.
	s.Tick(context.Background(), 0.1)
	if got := len(s.Instances()); got != 0 {
		t.Fatalf("instances after tick = %d, want 0", got)
	}
	if si.Emitters()[0].State() != emitter.Complete {
		t.Fatalf("state = %v, want Complete", si.Emitters()[0].State())
	}
}

func TestRunGPUTick_ReadsPackagedParamSnapshot(t *testing.T) {
	var got float32
	def := &emitter.Definition{
		Name:         "gpu-snap",
		Target:       ember.SimTargetGPU,
		Variables:    []dataset.Variable{{Name: "Position", Type: dataset.Vec3}},
		Bursts:       []emitter.Burst{{Time: 0, Count: 4}},
		SpawnProgram: keepAll("gpu-snap.spawn", nil),
		GPUProgram: &vm.FuncProgram{
			Name:   "gpu-snap.sim",
			Params: []vm.Uniform{{Name: "strength", Size: 4}},
			Run: func(_ context.Context, in *vm.ExecInput) (vm.ExecResult, error) {
				got = math.Float32frombits(binary.LittleEndian.Uint32(in.Params))
				return vm.ExecResult{NumInstancesOut: in.NumInstances}, nil
			},
		},
	}
	e, err := emitter.NewInstance(def)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}

	e.PreTick(ember.Clock{}.Advance(0.1))
	if err := e.GPUContext().Parameters().SetFloat32("strength", 42); err != nil {
		t.Fatalf("SetFloat32: %v", err)
	}
	packet := gputick.Package([]*emitter.Instance{e})
	if packet == nil {
		t.Fatal("expected a packet for an active GPU emitter")
	}

	// A simulation-side write landing between packaging and the consumer
	// running the packet must stay invisible to the program.
	if err := e.GPUContext().Parameters().SetFloat32("strength", 7); err != nil {
		t.Fatalf("SetFloat32: %v", err)
	}

	runGPUTick(packet)
	packet.Destroy()

	if got != 42 {
		t.Fatalf("program observed strength = %v, want the packaged 42", got)
	}
	if e.GetNumParticles() != 4 {
		t.Fatalf("readback = %d, want 4", e.GetNumParticles())
	}
}

func TestSimulation_RemovesCompletedInstances(t *testing.T) {
	s := NewSimulation(Config{ExecutePrograms: true, Workers: 2})
	defer s.Close()

	done := NewInstance(s.cfg, "done",
		oneBurstDef("e", 1, keepAll("e.spawn", nil),
			&vm.FuncProgram{
				Name: "e.kill",
				Run: func(_ context.Context, in *vm.ExecInput) (vm.ExecResult, error) {
					return vm.ExecResult{}, nil
				},
			}))
	running := NewInstance(s.cfg, "running",
		oneBurstDef("e", 2, keepAll("e.spawn", nil), keepAll("e.update", nil)))
	s.AddInstance(done)
	s.AddInstance(running)

	s.Tick(context.Background(), 0.1)

	left := s.Instances()
	if len(left) != 1 || left[0] != running {
		t.Fatalf("instances after tick = %d, want only the running one", len(left))
	}
	if s.Clock().Frame != 1 {
		t.Fatalf("frame = %d, want 1", s.Clock().Frame)
	}
	if s.Clock().Delta != 0.1 {
		t.Fatalf("delta = %v, want 0.1", s.Clock().Delta)
	}
}

// countingInterface tracks how many times its per-instance data is destroyed.
type countingInterface struct {
	destroys int
}

func (c *countingInterface) Name() string                          { return "counter" }
func (c *countingInterface) PerInstanceDataSize() int              { return 4 }
func (c *countingInterface) InitPerInstanceData(data []byte) error { return nil }
func (c *countingInterface) DestroyPerInstanceData(data []byte)    { c.destroys++ }
func (c *countingInterface) PerInstanceTick(data []byte, clock ember.Clock) bool {
	return false
}
func (c *countingInterface) GetExternalFunction(binding vm.ExternalFuncDescriptor, data []byte) (vm.ExternalFunc, error) {
	return nil, nil
}
func (c *countingInterface) GPUProxy() any { return nil }

func TestSimulation_DestroysCompletedInstances(t *testing.T) {
	s := NewSimulation(Config{ExecutePrograms: true, Workers: 1})
	defer s.Close()

	counter := &countingInterface{}
	decl := []vm.DataInterfaceDescriptor{{Name: "counter"}}
	def := &emitter.Definition{
		Name:       "oneshot",
		Variables:  []dataset.Variable{{Name: "Position", Type: dataset.Vec3}},
		Bursts:     []emitter.Burst{{Time: 0, Count: 1}},
		Interfaces: []datainterface.Interface{counter},
		SpawnProgram: &vm.FuncProgram{
			Name:       "oneshot.spawn",
			Interfaces: decl,
			Run: func(_ context.Context, in *vm.ExecInput) (vm.ExecResult, error) {
				return vm.ExecResult{NumInstancesOut: in.NumInstances}, nil
			},
		},
		UpdateProgram: &vm.FuncProgram{
			Name:       "oneshot.kill",
			Interfaces: decl,
			Run: func(_ context.Context, in *vm.ExecInput) (vm.ExecResult, error) {
				return vm.ExecResult{}, nil
			},
		},
	}
	s.AddInstance(NewInstance(s.cfg, "oneshot", def))

	// The burst is killed the same frame, so the instance completes and
	// leaves the schedule. Teardown must run then: once off the schedule the
	// scheduler never sees the instance again.
	s.Tick(context.Background(), 0.1)
	if got := len(s.Instances()); got != 0 {
		t.Fatalf("instances after tick = %d, want 0", got)
	}
	if counter.destroys != 1 {
		t.Fatalf("destroy hooks ran %d times after completion, want 1", counter.destroys)
	}

	s.Close()
	if counter.destroys != 1 {
		t.Fatalf("destroy hooks ran %d times after Close, want still 1", counter.destroys)
	}
}

func TestSimulation_TicksEveryInstance(t *testing.T) {
	s := NewSimulation(Config{ExecutePrograms: true, Workers: 4})
	defer s.Close()

	const n = 8
	for i := 0; i < n; i++ {
		s.AddInstance(NewInstance(s.cfg, "inst",
			oneBurstDef("e", 3, keepAll("e.spawn", nil), keepAll("e.update", nil))))
	}
	s.Tick(context.Background(), 0.1)

	for _, si := range s.Instances() {
		if si.Emitters()[0].GetNumParticles() != 3 {
			t.Fatalf("instance %s did not tick", si.Name())
		}
	}
}
