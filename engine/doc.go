// Package engine adapts compiled WebAssembly kernels to the vm.Program
// invocation contract using the wazero runtime.
//
// A kernel is an opaque byte-code blob paired with a Manifest declaring its
// external call sites, data-interface dependencies and uniform layout; the
// engine never parses program semantics beyond that declared contract.
//
// # Kernel ABI
//
// A kernel module must export:
//
//	configure(max_instances, num_float, num_int i32) -> i32   register base
//	param_base(size i32) -> i32                               uniform base
//	simulate(count i32) -> i32                                produced count
//
// Registers are staged channel-major through guest memory at the configured
// base: float input channels, float output channels, then int channels, each
// max_instances wide. External call sites import functions from a module
// named after their owner, with signature (count, in_ptr, out_ptr i32);
// lane data at the pointers is channel-major with a stride of count.
package engine
