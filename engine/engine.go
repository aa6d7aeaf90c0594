package engine

import (
	"context"

	"github.com/tetratelabs/wazero"

	"github.com/emberfx/ember/errors"
	"github.com/emberfx/ember/vm"
)

// Config holds configuration for engine creation.
type Config struct {
	// MemoryLimitPages sets the maximum memory per kernel in pages (64KB
	// each). 0 means the wazero default.
	MemoryLimitPages uint32
}

// Engine owns one wazero runtime shared by every kernel it loads.
type Engine struct {
	runtime wazero.Runtime
}

// NewEngine creates a wazero-backed kernel engine.
func NewEngine(ctx context.Context) (*Engine, error) {
	return NewEngineWithConfig(ctx, nil)
}

// NewEngineWithConfig creates an engine with custom configuration.
func NewEngineWithConfig(ctx context.Context, cfg *Config) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	return &Engine{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
	}, nil
}

// Close releases the runtime. All kernels must be closed before calling this.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// Manifest is the declared contract accompanying a kernel byte-code blob:
// external call sites, data-interface dependencies and the uniform layout.
// The engine matches counts and names; it does not validate semantics.
type Manifest struct {
	Name       string
	Externals  []vm.ExternalFuncDescriptor
	Interfaces []vm.DataInterfaceDescriptor
	Uniforms   []vm.Uniform
}

// LoadKernel compiles a kernel module and pairs it with its manifest. The
// returned Kernel satisfies vm.Program; it instantiates lazily on first
// execution.
func (e *Engine) LoadKernel(ctx context.Context, wasmBytes []byte, m Manifest) (*Kernel, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Load("compile kernel "+m.Name, err)
	}

	exports := compiled.ExportedFunctions()
	for _, required := range []string{"configure", "param_base", "simulate"} {
		if _, ok := exports[required]; !ok {
			return nil, errors.NotFound(errors.PhaseLoad, "kernel export", m.Name+"."+required)
		}
	}

	return &Kernel{
		engine:   e,
		manifest: m,
		compiled: compiled,
	}, nil
}
