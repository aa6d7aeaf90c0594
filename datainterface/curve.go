package datainterface

import (
	"context"
	"sort"

	ember "github.com/emberfx/ember"
	"github.com/emberfx/ember/errors"
	"github.com/emberfx/ember/vm"
)

// Keyframe is one point on a scalar curve.
type Keyframe struct {
	T     float32
	Value float32
}

// Curve samples a piecewise-linear keyframe curve from simulation programs.
// It is stateless per instance.
//
// Call sites:
//
//	sample-curve: in t  out value
type Curve struct {
	InterfaceName string
	Keys          []Keyframe
}

// NewCurve copies and sorts keys by time.
func NewCurve(name string, keys []Keyframe) *Curve {
	c := &Curve{InterfaceName: name, Keys: append([]Keyframe(nil), keys...)}
	sort.Slice(c.Keys, func(i, j int) bool { return c.Keys[i].T < c.Keys[j].T })
	return c
}

func (c *Curve) Name() string {
	if c.InterfaceName != "" {
		return c.InterfaceName
	}
	return "Curve"
}

func (c *Curve) PerInstanceDataSize() int { return 0 }

func (c *Curve) InitPerInstanceData(data []byte) error { return nil }

func (c *Curve) DestroyPerInstanceData(data []byte) {}

func (c *Curve) PerInstanceTick(data []byte, clock ember.Clock) bool { return false }

// Sample evaluates the curve at t, clamping outside the key range.
func (c *Curve) Sample(t float32) float32 {
	n := len(c.Keys)
	if n == 0 {
		return 0
	}
	if t <= c.Keys[0].T {
		return c.Keys[0].Value
	}
	if t >= c.Keys[n-1].T {
		return c.Keys[n-1].Value
	}
	i := sort.Search(n, func(i int) bool { return c.Keys[i].T > t })
	a, b := c.Keys[i-1], c.Keys[i]
	span := b.T - a.T
	if span <= 0 {
		return a.Value
	}
	f := (t - a.T) / span
	return a.Value + (b.Value-a.Value)*f
}

func (c *Curve) GetExternalFunction(binding vm.ExternalFuncDescriptor, data []byte) (vm.ExternalFunc, error) {
	if binding.Function != "sample-curve" {
		return nil, errors.Unresolved(c.Name(), binding.Function)
	}
	return func(_ context.Context, call *vm.ExternalCall) error {
		if len(call.In) < 1 || len(call.Out) < 1 {
			return errors.CountMismatch(errors.PhaseExecute, "sample-curve registers", 1, len(call.In))
		}
		for i := 0; i < call.NumInstances; i++ {
			call.Out[0][i] = c.Sample(call.In[0][i])
		}
		return nil
	}, nil
}
