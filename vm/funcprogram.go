package vm

import (
	"context"

	"github.com/emberfx/ember/errors"
)

// FuncProgram adapts a plain Go function to the Program interface. It carries
// the same declared metadata a compiled kernel would, so execution contexts
// treat both identically.
type FuncProgram struct {
	Name       string
	Externals  []ExternalFuncDescriptor
	Interfaces []DataInterfaceDescriptor
	Params     []Uniform
	Run        func(ctx context.Context, in *ExecInput) (ExecResult, error)
}

func (p *FuncProgram) Runnable() bool {
	return p != nil && p.Run != nil
}

func (p *FuncProgram) ExternalFunctions() []ExternalFuncDescriptor {
	return p.Externals
}

func (p *FuncProgram) DataInterfaces() []DataInterfaceDescriptor {
	return p.Interfaces
}

func (p *FuncProgram) Uniforms() []Uniform {
	return p.Params
}

func (p *FuncProgram) Execute(ctx context.Context, in *ExecInput) (ExecResult, error) {
	if p.Run == nil {
		return ExecResult{}, errors.NotRunnable(p.Name)
	}
	return p.Run(ctx, in)
}
