package emitter

import (
	"context"
	"testing"

	ember "github.com/emberfx/ember"
	"github.com/emberfx/ember/dataset"
	"github.com/emberfx/ember/vm"
)

// markSpawner writes v into Position.x of every record it produces. The
// event dataset rides along as a secondary input but is not read.
func markSpawner(v float32) *vm.FuncProgram {
	return &vm.FuncProgram{
		Name: "mark",
		Run: func(_ context.Context, in *vm.ExecInput) (vm.ExecResult, error) {
			for i := 0; i < in.NumInstances; i++ {
				in.FloatOut[0][i] = v
			}
			return vm.ExecResult{NumInstancesOut: in.NumInstances}, nil
		},
	}
}

// impulseSpawner copies the event's Impulse column into Position.x. The
// event channel follows the six particle channels in the register table.
func impulseSpawner() *vm.FuncProgram {
	return &vm.FuncProgram{
		Name: "impulse",
		Run: func(_ context.Context, in *vm.ExecInput) (vm.ExecResult, error) {
			for i := 0; i < in.NumInstances; i++ {
				in.FloatOut[0][i] = in.FloatIn[6][i]
			}
			return vm.ExecResult{NumInstancesOut: in.NumInstances}, nil
		},
	}
}

func writeEvents(t *testing.T, set *dataset.Dataset, impulses ...float32) {
	t.Helper()
	dst := set.BeginSimulate(len(impulses))
	if dst == nil {
		t.Fatal("event dataset not finalized")
	}
	for i, v := range impulses {
		dst.SetFloatAt("Impulse", i, v)
	}
	set.EndSimulate(len(impulses))
}

func TestInstance_EventHandlerSpawnsPerEvent(t *testing.T) {
	def := &Definition{
		Name:          "collide",
		Variables:     particleSchema(),
		SpawnProgram:  spawnAtRest(0),
		UpdateProgram: eulerUpdate(),
		Events: []EventHandlerDef{{
			Name:      "hits",
			Program:   impulseSpawner(),
			Variables: []dataset.Variable{{Name: "Impulse", Type: dataset.Float}},
			Policy:    SpawnPolicy{Mode: SpawnPerEvent},
		}},
	}
	inst, err := NewInstance(def)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}

	writeEvents(t, inst.EventSet("hits"), 3, 7)

	var clock ember.Clock
	step(t, inst, &clock, 0.1)

	if got := inst.GetNumParticles(); got != 2 {
		t.Fatalf("particles = %d, want 2", got)
	}
	cur := inst.Data().GetCurrentData()
	if cur.FloatAt("Position", 0) != 3 || cur.FloatAt("Position", 1) != 7 {
		t.Fatalf("impulses = %v, %v; want 3, 7",
			cur.FloatAt("Position", 0), cur.FloatAt("Position", 1))
	}
	if inst.EventSet("hits").NumInstances() != 0 {
		t.Fatal("events must be consumed after the tick")
	}
}

func TestInstance_EventSpawnCountIsCapped(t *testing.T) {
	def := &Definition{
		Name:          "storm",
		Variables:     particleSchema(),
		SpawnProgram:  spawnAtRest(0),
		UpdateProgram: eulerUpdate(),
		Events: []EventHandlerDef{{
			Name:      "hits",
			Program:   markSpawner(1),
			Variables: []dataset.Variable{{Name: "Impulse", Type: dataset.Float}},
			Policy:    SpawnPolicy{Mode: FixedBurst, BurstCount: 1000},
		}},
	}
	inst, err := NewInstance(def)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}

	writeEvents(t, inst.EventSet("hits"), 1)

	var clock ember.Clock
	step(t, inst, &clock, 0.1)

	if got := inst.GetNumParticles(); got != MaxEventSpawnsPerHandler {
		t.Fatalf("particles = %d, want capped at %d", got, MaxEventSpawnsPerHandler)
	}
}

func TestInstance_EventHandlersRunInDeclarationOrder(t *testing.T) {
	eventVars := []dataset.Variable{{Name: "Impulse", Type: dataset.Float}}
	def := &Definition{
		Name:          "ordered",
		Variables:     particleSchema(),
		SpawnProgram:  spawnAtRest(0),
		UpdateProgram: eulerUpdate(),
		Events: []EventHandlerDef{
			{Name: "first", Program: markSpawner(1), Variables: eventVars, Policy: SpawnPolicy{Mode: SpawnPerEvent}},
			{Name: "second", Program: markSpawner(2), Variables: eventVars, Policy: SpawnPolicy{Mode: SpawnPerEvent}},
		},
	}
	inst, err := NewInstance(def)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}

	writeEvents(t, inst.EventSet("first"), 0, 0)
	writeEvents(t, inst.EventSet("second"), 0, 0, 0)

	var clock ember.Clock
	step(t, inst, &clock, 0.1)

	if got := inst.GetNumParticles(); got != 5 {
		t.Fatalf("particles = %d, want 5", got)
	}
	cur := inst.Data().GetCurrentData()
	want := []float32{1, 1, 2, 2, 2}
	for i, w := range want {
		if got := cur.FloatAt("Position", i); got != w {
			t.Fatalf("record %d marker = %v, want %v", i, got, w)
		}
	}
}

func TestInstance_NoEventsNoSpawn(t *testing.T) {
	def := &Definition{
		Name:          "quiet",
		Variables:     particleSchema(),
		SpawnProgram:  spawnAtRest(0),
		UpdateProgram: eulerUpdate(),
		Events: []EventHandlerDef{{
			Name:      "hits",
			Program:   markSpawner(1),
			Variables: []dataset.Variable{{Name: "Impulse", Type: dataset.Float}},
			Policy:    SpawnPolicy{Mode: FixedBurst, BurstCount: 10},
		}},
	}
	inst, err := NewInstance(def)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}

	var clock ember.Clock
	step(t, inst, &clock, 0.1)
	if got := inst.GetNumParticles(); got != 0 {
		t.Fatalf("particles = %d with no events, want 0", got)
	}
}
