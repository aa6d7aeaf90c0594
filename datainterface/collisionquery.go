package datainterface

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	ember "github.com/emberfx/ember"
	"github.com/emberfx/ember/collision"
	"github.com/emberfx/ember/errors"
	"github.com/emberfx/ember/vm"
)

// Per-instance layout: submitted count (u32), resolved count (u32),
// both reset each tick for stats.
const collisionStateSize = 8

// CollisionQuery exposes the async trace batch to simulation programs.
//
// Call sites:
//
//	submit-ray:  in  sx,sy,sz,ex,ey,ez  out id
//	resolve-ray: in  id                 out valid,px,py,pz,dist
//
// IDs travel through float registers; a query submitted this tick resolves
// no earlier than next tick, matching the batch contract.
type CollisionQuery struct {
	InterfaceName string
	Batch         *collision.Batch
	World         collision.World
	Channel       collision.Channel
}

func (c *CollisionQuery) Name() string {
	if c.InterfaceName != "" {
		return c.InterfaceName
	}
	return "Collision"
}

func (c *CollisionQuery) PerInstanceDataSize() int {
	return collisionStateSize
}

func (c *CollisionQuery) InitPerInstanceData(data []byte) error {
	clear(data)
	return nil
}

func (c *CollisionQuery) DestroyPerInstanceData(data []byte) {
	clear(data)
}

func (c *CollisionQuery) PerInstanceTick(data []byte, clock ember.Clock) bool {
	if len(data) >= collisionStateSize {
		clear(data[:collisionStateSize])
	}
	return false
}

// SubmittedThisTick returns the per-instance submit counter, for stats.
func (c *CollisionQuery) SubmittedThisTick(data []byte) uint32 {
	if len(data) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(data)
}

func (c *CollisionQuery) GetExternalFunction(binding vm.ExternalFuncDescriptor, data []byte) (vm.ExternalFunc, error) {
	switch binding.Function {
	case "submit-ray":
		return c.submitRay(data), nil
	case "resolve-ray":
		return c.resolveRay(data), nil
	default:
		return nil, errors.Unresolved(c.Name(), binding.Function)
	}
}

func (c *CollisionQuery) submitRay(data []byte) vm.ExternalFunc {
	return func(_ context.Context, call *vm.ExternalCall) error {
		if len(call.In) < 6 || len(call.Out) < 1 {
			return errors.CountMismatch(errors.PhaseExecute, "submit-ray registers", 6, len(call.In))
		}
		for i := 0; i < call.NumInstances; i++ {
			start := mgl32.Vec3{call.In[0][i], call.In[1][i], call.In[2][i]}
			end := mgl32.Vec3{call.In[3][i], call.In[4][i], call.In[5][i]}
			id := c.Batch.SubmitQuery(c.World, start, end, c.Channel)
			call.Out[0][i] = float32(id)
		}
		if len(data) >= 4 {
			n := binary.LittleEndian.Uint32(data)
			binary.LittleEndian.PutUint32(data, n+uint32(call.NumInstances))
		}
		return nil
	}
}

func (c *CollisionQuery) resolveRay(data []byte) vm.ExternalFunc {
	return func(_ context.Context, call *vm.ExternalCall) error {
		if len(call.In) < 1 || len(call.Out) < 5 {
			return errors.CountMismatch(errors.PhaseExecute, "resolve-ray registers", 5, len(call.Out))
		}
		resolved := uint32(0)
		for i := 0; i < call.NumInstances; i++ {
			id := collision.QueryID(call.In[0][i])
			res, ok := c.Batch.GetQueryResult(id)
			if !ok || !res.Hit.Blocked {
				call.Out[0][i] = 0
				call.Out[1][i] = 0
				call.Out[2][i] = 0
				call.Out[3][i] = 0
				call.Out[4][i] = float32(math.Inf(1))
				continue
			}
			resolved++
			call.Out[0][i] = 1
			call.Out[1][i] = res.Hit.Position[0]
			call.Out[2][i] = res.Hit.Position[1]
			call.Out[3][i] = res.Hit.Position[2]
			call.Out[4][i] = res.Hit.Distance
		}
		if len(data) >= 8 {
			n := binary.LittleEndian.Uint32(data[4:])
			binary.LittleEndian.PutUint32(data[4:], n+resolved)
		}
		return nil
	}
}
