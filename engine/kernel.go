package engine

import (
	"context"
	"math"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/emberfx/ember/errors"
	"github.com/emberfx/ember/vm"
)

// Kernel is one compiled simulation program backed by a wazero module
// instance. It satisfies vm.Program. A kernel is confined to one execution
// context; the core never executes it concurrently with itself.
type Kernel struct {
	engine   *Engine
	manifest Manifest
	compiled wazero.CompiledModule

	mod       api.Module
	configure api.Function
	paramBase api.Function
	simulate  api.Function

	regBase      uint32
	paramAddr    uint32
	maxInstances int
	numFloat     int
	numInt       int

	// current holds the in-flight invocation's externals so imported host
	// functions can dispatch by call-site index.
	current *vm.ExecInput
}

func (k *Kernel) Runnable() bool {
	return k != nil && k.compiled != nil
}

func (k *Kernel) ExternalFunctions() []vm.ExternalFuncDescriptor {
	return k.manifest.Externals
}

func (k *Kernel) DataInterfaces() []vm.DataInterfaceDescriptor {
	return k.manifest.Interfaces
}

func (k *Kernel) Uniforms() []vm.Uniform {
	return k.manifest.Uniforms
}

// Close releases the module instance.
func (k *Kernel) Close(ctx context.Context) error {
	if k.mod != nil {
		return k.mod.Close(ctx)
	}
	return nil
}

// instantiate builds the host modules for every declared external owner and
// then the kernel module itself. Host functions dispatch through the
// kernel's in-flight invocation, so rebinding a context never requires
// re-instantiating the module.
func (k *Kernel) instantiate(ctx context.Context) error {
	owners := map[string]bool{}
	for _, site := range k.manifest.Externals {
		owners[site.Owner] = true
	}
	for owner := range owners {
		builder := k.engine.runtime.NewHostModuleBuilder(owner)
		for idx, site := range k.manifest.Externals {
			if site.Owner != owner {
				continue
			}
			siteIdx := idx
			desc := site
			builder = builder.NewFunctionBuilder().
				WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
					k.dispatch(ctx, mod, stack, siteIdx, desc)
				}),
					[]api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32},
					nil).
				Export(site.Function)
		}
		if _, err := builder.Instantiate(ctx); err != nil {
			return errors.Instantiation(err)
		}
	}

	mod, err := k.engine.runtime.InstantiateModule(ctx, k.compiled,
		wazero.NewModuleConfig().WithName(k.manifest.Name))
	if err != nil {
		return errors.Instantiation(err)
	}
	k.mod = mod
	k.configure = mod.ExportedFunction("configure")
	k.paramBase = mod.ExportedFunction("param_base")
	k.simulate = mod.ExportedFunction("simulate")
	return nil
}

// dispatch bridges one imported call site to the bound external function.
// Lane data at the guest pointers is channel-major with a stride of count.
func (k *Kernel) dispatch(ctx context.Context, mod api.Module, stack []uint64, siteIdx int, desc vm.ExternalFuncDescriptor) {
	in := k.current
	if in == nil || siteIdx >= len(in.Externals) || in.Externals[siteIdx] == nil {
		// Executing with an unresolved site is prevented upstream; landing
		// here means the caller broke the bind contract.
		panic("engine: external call with no bound function: " + desc.Owner + "#" + desc.Function)
	}
	count := int(uint32(stack[0]))
	inPtr := uint32(stack[1])
	outPtr := uint32(stack[2])

	mem := mod.Memory()
	call := vm.ExternalCall{
		NumInstances: count,
		In:           readChannels(mem, inPtr, desc.NumInputs, count),
		Out:          make([][]float32, desc.NumOutputs),
	}
	for c := range call.Out {
		call.Out[c] = make([]float32, count)
	}

	if err := in.Externals[siteIdx](ctx, &call); err != nil {
		Logger().Warn("external function failed",
			zap.String("owner", desc.Owner),
			zap.String("function", desc.Function),
			zap.Error(err))
		return
	}

	for c := range call.Out {
		base := outPtr + uint32(c*count*4)
		for i := 0; i < count; i++ {
			mem.WriteUint32Le(base+uint32(i*4), math.Float32bits(call.Out[c][i]))
		}
	}
}

func readChannels(mem api.Memory, ptr uint32, channels, count int) [][]float32 {
	out := make([][]float32, channels)
	for c := 0; c < channels; c++ {
		ch := make([]float32, count)
		base := ptr + uint32(c*count*4)
		for i := 0; i < count; i++ {
			bits, _ := mem.ReadUint32Le(base + uint32(i*4))
			ch[i] = math.Float32frombits(bits)
		}
		out[c] = ch
	}
	return out
}

// Execute stages the registers into guest memory, invokes simulate once and
// reads the produced records back.
func (k *Kernel) Execute(ctx context.Context, in *vm.ExecInput) (vm.ExecResult, error) {
	if k.mod == nil {
		if err := k.instantiate(ctx); err != nil {
			return vm.ExecResult{}, err
		}
	}

	numFloat := len(in.FloatIn) + len(in.FloatOut)
	numInt := len(in.IntIn) + len(in.IntOut)
	if in.NumInstances > k.maxInstances || numFloat != k.numFloat || numInt != k.numInt {
		maxInstances := nextCapacity(in.NumInstances, k.maxInstances)
		res, err := k.configure.Call(ctx, uint64(maxInstances), uint64(numFloat), uint64(numInt))
		if err != nil {
			return vm.ExecResult{}, errors.Wrap(errors.PhaseExecute, errors.KindAllocation, err, "configure "+k.manifest.Name)
		}
		k.regBase = uint32(res[0])
		k.maxInstances = maxInstances
		k.numFloat = numFloat
		k.numInt = numInt

		res, err = k.paramBase.Call(ctx, uint64(len(in.Params)))
		if err != nil {
			return vm.ExecResult{}, errors.Wrap(errors.PhaseExecute, errors.KindAllocation, err, "param_base "+k.manifest.Name)
		}
		k.paramAddr = uint32(res[0])
	}

	mem := k.mod.Memory()
	if len(in.Params) > 0 {
		if !mem.Write(k.paramAddr, in.Params) {
			return vm.ExecResult{}, errors.OutOfBounds(errors.PhaseExecute, k.manifest.Name, int(k.paramAddr), int(mem.Size()))
		}
	}

	stride := uint32(k.maxInstances * 4)
	channel := uint32(0)
	writeFloats := func(chs [][]float32) {
		for _, ch := range chs {
			base := k.regBase + channel*stride
			n := in.NumInstances
			if n > len(ch) {
				n = len(ch)
			}
			for i := 0; i < n; i++ {
				mem.WriteUint32Le(base+uint32(i*4), math.Float32bits(ch[i]))
			}
			channel++
		}
	}
	writeFloats(in.FloatIn)
	outFloatChannel := channel
	channel += uint32(len(in.FloatOut))
	for _, ch := range in.IntIn {
		base := k.regBase + channel*stride
		n := in.NumInstances
		if n > len(ch) {
			n = len(ch)
		}
		for i := 0; i < n; i++ {
			mem.WriteUint32Le(base+uint32(i*4), uint32(ch[i]))
		}
		channel++
	}
	outIntChannel := channel

	k.current = in
	defer func() { k.current = nil }()

	res, err := k.simulate.Call(ctx, uint64(in.NumInstances))
	if err != nil {
		return vm.ExecResult{}, errors.Wrap(errors.PhaseExecute, errors.KindInvalidInput, err, "simulate "+k.manifest.Name)
	}
	produced := int(int32(uint32(res[0])))
	if produced < 0 {
		produced = 0
	}
	if produced > in.NumInstances {
		produced = in.NumInstances
	}

	for c, ch := range in.FloatOut {
		base := k.regBase + (outFloatChannel+uint32(c))*stride
		n := produced
		if n > len(ch) {
			n = len(ch)
		}
		for i := 0; i < n; i++ {
			bits, _ := mem.ReadUint32Le(base + uint32(i*4))
			ch[i] = math.Float32frombits(bits)
		}
	}
	for c, ch := range in.IntOut {
		base := k.regBase + (outIntChannel+uint32(c))*stride
		n := produced
		if n > len(ch) {
			n = len(ch)
		}
		for i := 0; i < n; i++ {
			bits, _ := mem.ReadUint32Le(base + uint32(i*4))
			ch[i] = int32(bits)
		}
	}

	return vm.ExecResult{NumInstancesOut: produced}, nil
}

func nextCapacity(needed, current int) int {
	capacity := current
	if capacity < 64 {
		capacity = 64
	}
	for capacity < needed {
		capacity *= 2
	}
	return capacity
}
