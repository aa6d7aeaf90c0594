package datainterface

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	ember "github.com/emberfx/ember"
	"github.com/emberfx/ember/errors"
	"github.com/emberfx/ember/vm"
)

// Per-instance layout: current xyz, previous xyz, last delta seconds.
const transformStateSize = 28

// teleportDistance is the squared jump beyond which the interface demands a
// full simulation reset instead of producing an enormous fake velocity.
const teleportDistance = 1000.0 * 1000.0

// Transform exposes the owning component's position and frame-to-frame
// velocity to simulation programs. The previous-frame slot is captured
// during PerInstanceTick, so velocity reads stay coherent for motion-blur
// dependent effects.
//
// Call sites:
//
//	get-position: out px,py,pz
//	get-velocity: out vx,vy,vz
type Transform struct {
	InterfaceName string

	position mgl32.Vec3
}

func (t *Transform) Name() string {
	if t.InterfaceName != "" {
		return t.InterfaceName
	}
	return "Transform"
}

// SetPosition updates the owner's position. Takes effect on the next tick.
func (t *Transform) SetPosition(p mgl32.Vec3) {
	t.position = p
}

func (t *Transform) PerInstanceDataSize() int {
	return transformStateSize
}

func (t *Transform) InitPerInstanceData(data []byte) error {
	if len(data) < transformStateSize {
		return errors.CountMismatch(errors.PhaseBind, "transform per-instance data", transformStateSize, len(data))
	}
	putVec3(data, t.position)
	putVec3(data[12:], t.position)
	return nil
}

func (t *Transform) DestroyPerInstanceData(data []byte) {
	clear(data)
}

func (t *Transform) PerInstanceTick(data []byte, clock ember.Clock) bool {
	if len(data) < transformStateSize {
		return false
	}
	cur := getVec3(data)
	putVec3(data[12:], cur)
	putVec3(data, t.position)
	binary.LittleEndian.PutUint32(data[24:], math.Float32bits(clock.Delta))

	jump := t.position.Sub(cur)
	return jump.Dot(jump) > teleportDistance
}

func (t *Transform) GetExternalFunction(binding vm.ExternalFuncDescriptor, data []byte) (vm.ExternalFunc, error) {
	switch binding.Function {
	case "get-position":
		return func(_ context.Context, call *vm.ExternalCall) error {
			if len(call.Out) < 3 {
				return errors.CountMismatch(errors.PhaseExecute, "get-position registers", 3, len(call.Out))
			}
			p := getVec3(data)
			for i := 0; i < call.NumInstances; i++ {
				call.Out[0][i] = p[0]
				call.Out[1][i] = p[1]
				call.Out[2][i] = p[2]
			}
			return nil
		}, nil
	case "get-velocity":
		return func(_ context.Context, call *vm.ExternalCall) error {
			if len(call.Out) < 3 {
				return errors.CountMismatch(errors.PhaseExecute, "get-velocity registers", 3, len(call.Out))
			}
			v := t.velocity(data)
			for i := 0; i < call.NumInstances; i++ {
				call.Out[0][i] = v[0]
				call.Out[1][i] = v[1]
				call.Out[2][i] = v[2]
			}
			return nil
		}, nil
	default:
		return nil, errors.Unresolved(t.Name(), binding.Function)
	}
}

func (t *Transform) velocity(data []byte) mgl32.Vec3 {
	if len(data) < transformStateSize {
		return mgl32.Vec3{}
	}
	dt := math.Float32frombits(binary.LittleEndian.Uint32(data[24:]))
	if dt <= 0 {
		return mgl32.Vec3{}
	}
	cur := getVec3(data)
	prev := getVec3(data[12:])
	return cur.Sub(prev).Mul(1 / dt)
}

func putVec3(b []byte, v mgl32.Vec3) {
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v[i]))
	}
}

func getVec3(b []byte) mgl32.Vec3 {
	var v mgl32.Vec3
	for i := 0; i < 3; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
