// Package vm defines the invocation contract between the simulation core and
// compiled particle programs.
//
// The core never inspects program byte-code. A program is an opaque value
// satisfying the Program interface: it declares its external call sites, its
// data-interface requirements and its uniform parameter layout, and it can be
// executed once per tick against register tables assembled from columnar
// dataset buffers.
//
// The engine package adapts WebAssembly kernels to this interface; tests and
// tools may use FuncProgram to run plain Go simulation kernels through the
// same contract.
package vm
