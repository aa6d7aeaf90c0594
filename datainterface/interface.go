package datainterface

import (
	ember "github.com/emberfx/ember"
	"github.com/emberfx/ember/vm"
)

// Interface is the capability contract for one external data source callable
// from a simulation program. Implementations are matched against compiled
// external-function descriptors by Name.
type Interface interface {
	// Name is the declared owner name compiled call sites refer to.
	Name() string

	// PerInstanceDataSize returns how many bytes of opaque state this
	// interface needs per owning system instance. Zero means stateless.
	PerInstanceDataSize() int

	// InitPerInstanceData initializes a freshly allocated block. The block's
	// lifetime is scoped to the owning system instance.
	InitPerInstanceData(data []byte) error

	// DestroyPerInstanceData releases anything the block refers to. Called
	// exactly once, in interface declaration order, when the arena is
	// destroyed.
	DestroyPerInstanceData(data []byte)

	// PerInstanceTick advances the interface for one frame. Returning true
	// demands a full simulation reset of the owning instance.
	PerInstanceTick(data []byte, clock ember.Clock) bool

	// GetExternalFunction resolves one compiled call site to a callable
	// bound to data. Returning an error fails the owning context's rebuild.
	GetExternalFunction(binding vm.ExternalFuncDescriptor, data []byte) (vm.ExternalFunc, error)
}

// GPUProxied is implemented by interfaces that expose a render-thread proxy.
// The GPU tick packager collects the distinct proxies referenced by an
// emitter's GPU context into the tick packet.
type GPUProxied interface {
	GPUProxy() any
}
