// Package ember provides a per-frame particle simulation core.
//
// An ember system advances many independent emitter populations each frame by
// executing a compiled simulation program against columnar attribute buffers,
// optionally handing the same program to an asynchronous GPU-style compute
// path, and reconciling results back into a renderer-visible data set.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	ember/               Root package with the simulation clock, sim target and
//	                     double-buffer primitives shared by every layer
//	├── dataset/         Typed columnar particle storage, double-buffered
//	├── vm/              Program invocation contract: registers, descriptors,
//	                     parameter stores
//	├── engine/          wazero-backed kernel programs (WebAssembly byte-code)
//	├── script/          Execution contexts binding programs, parameters and
//	                     data interfaces to one VM invocation per tick
//	├── datainterface/   External capability contract (collision, curves, ...)
//	                     plus the per-instance data arena
//	├── collision/       Double-buffered asynchronous trace query batch
//	├── emitter/         Emitter instance state machine and spawn bookkeeping
//	├── gputick/         Per-frame GPU tick packets and the async dispatcher
//	├── system/          System instances and the frame scheduler
//	└── errors/          Structured error types for debugging
//
// # Quick Start
//
// Build an emitter definition, wrap it in a system instance and tick it:
//
//	cfg := system.DefaultConfig()
//	def := &emitter.Definition{ ... }
//	inst := system.NewInstance(cfg, "demo", def)
//	sim := system.NewSimulation(cfg)
//	sim.AddInstance(inst)
//	sim.Tick(ctx, 1.0/60.0)
//
// The renderer may read only the dataset's current buffer; the destination
// buffer belongs exclusively to the task simulating that emitter.
package ember
