package vm

import (
	"context"
)

// MaxRegisters caps the combined input+output register table assembled for a
// single invocation. Exceeding it is a hard execution failure, never a
// truncation.
const MaxRegisters = 256

// ExternalFuncDescriptor declares one external call site compiled into a
// program. Owner names a data interface; the execution context resolves the
// pair against the live interface set at bind time.
type ExternalFuncDescriptor struct {
	Owner    string
	Function string
	// NumInputs and NumOutputs are per-lane register counts the call site
	// expects. They are part of the compiled contract and are not validated
	// beyond the provider accepting the binding.
	NumInputs  int
	NumOutputs int
}

// DataInterfaceDescriptor declares one data interface a program depends on.
type DataInterfaceDescriptor struct {
	Name string
}

// Uniform describes one named parameter in a program's flat parameter block.
type Uniform struct {
	Name   string
	Size   int
	Offset int
}

// ExternalCall carries the per-lane registers for one external function
// invocation from inside the interpreter.
type ExternalCall struct {
	NumInstances int
	In           [][]float32
	Out          [][]float32
}

// ExternalFunc is a resolved external call site. The callable is bound to its
// per-instance data when the execution context rebuilds its function table.
type ExternalFunc func(ctx context.Context, call *ExternalCall) error

// ExecInput is the register and parameter state for one program invocation.
// Input registers view the current (read) dataset buffer; output registers
// view the destination (write) buffer.
type ExecInput struct {
	NumInstances int
	FloatIn      [][]float32
	FloatOut     [][]float32
	IntIn        [][]int32
	IntOut       [][]int32
	Params       []byte
	Externals    []ExternalFunc
}

// ExecResult reports what the interpreter actually produced. NumInstancesOut
// may be lower than the allocated capacity when the program kills records;
// datasets that requested count tracking are updated from it after execution.
type ExecResult struct {
	NumInstancesOut int
}

// Program is an opaque compiled simulation program. Implementations must be
// safe for repeated Execute calls from a single goroutine; the core never
// executes one Program concurrently with itself.
type Program interface {
	// Runnable reports whether the program can execute. A non-runnable
	// program fails the owning context's tick without side effects.
	Runnable() bool

	// ExternalFunctions returns the compiled external call sites in call
	// order. The execution context's function table must resolve every
	// entry or the tick fails.
	ExternalFunctions() []ExternalFuncDescriptor

	// DataInterfaces returns the data interfaces the program was compiled
	// against, in declaration order.
	DataInterfaces() []DataInterfaceDescriptor

	// Uniforms returns the parameter block layout.
	Uniforms() []Uniform

	// Execute runs the program once over in.NumInstances records.
	Execute(ctx context.Context, in *ExecInput) (ExecResult, error)
}
