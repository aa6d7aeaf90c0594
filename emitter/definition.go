package emitter

import (
	ember "github.com/emberfx/ember"
	"github.com/emberfx/ember/datainterface"
	"github.com/emberfx/ember/dataset"
	"github.com/emberfx/ember/errors"
	"github.com/emberfx/ember/vm"
)

// Burst is a one-shot spawn request fired when the emitter's age crosses
// Time.
type Burst struct {
	Time  float32
	Count int
}

// SpawnPolicyMode selects how an event handler converts event records into
// spawn counts.
type SpawnPolicyMode uint8

const (
	// SpawnPerEvent spawns one particle per event record.
	SpawnPerEvent SpawnPolicyMode = iota
	// FixedBurst spawns BurstCount particles whenever at least one event
	// record exists.
	FixedBurst
)

// SpawnPolicy is the per-handler event spawn rule.
type SpawnPolicy struct {
	Mode       SpawnPolicyMode
	BurstCount int
}

// EventHandlerDef declares one event script: the program it runs, the schema
// of the event dataset it reads, and its spawn policy.
type EventHandlerDef struct {
	Name      string
	Program   vm.Program
	Variables []dataset.Variable
	Policy    SpawnPolicy
}

// Definition is the compiled emitter description an instance is built from.
// It is immutable; instances cache a pointer to it.
type Definition struct {
	Name   string
	Target ember.SimTarget

	// Variables declares the particle dataset schema.
	Variables     []dataset.Variable
	PersistentIDs bool

	// MaxParticles caps the live population. Zero means DefaultMaxParticles.
	MaxParticles int

	SpawnRate float32
	Bursts    []Burst

	SpawnProgram  vm.Program
	UpdateProgram vm.Program
	// GPUProgram replaces UpdateProgram when Target is SimTargetGPU.
	GPUProgram vm.Program

	Interfaces []datainterface.Interface
	Events     []EventHandlerDef
}

// DefaultMaxParticles bounds emitters that declare no cap.
const DefaultMaxParticles = 10000

func (d *Definition) maxParticles() int {
	if d.MaxParticles > 0 {
		return d.MaxParticles
	}
	return DefaultMaxParticles
}

func (d *Definition) validate() error {
	if d.Name == "" {
		return errors.InvalidInput(errors.PhaseBind, "emitter definition has no name")
	}
	if len(d.Variables) == 0 {
		return errors.InvalidInput(errors.PhaseBind, "emitter "+d.Name+" declares no variables")
	}
	if d.SpawnProgram == nil {
		return errors.NotInitialized(errors.PhaseBind, d.Name+".spawn")
	}
	switch d.Target {
	case ember.SimTargetCPU:
		if d.UpdateProgram == nil {
			return errors.NotInitialized(errors.PhaseBind, d.Name+".update")
		}
	case ember.SimTargetGPU:
		if d.GPUProgram == nil {
			return errors.NotInitialized(errors.PhaseBind, d.Name+".gpu")
		}
	}
	for _, ev := range d.Events {
		if ev.Program == nil {
			return errors.NotInitialized(errors.PhaseBind, d.Name+".event."+ev.Name)
		}
	}
	return nil
}
