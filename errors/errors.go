package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the simulation pipeline the error occurred
type Phase string

const (
	PhaseSchema    Phase = "schema"    // dataset layout declaration
	PhaseBind      Phase = "bind"      // program / data-interface binding
	PhaseExecute   Phase = "execute"   // VM invocation
	PhaseTick      Phase = "tick"      // emitter per-frame advance
	PhasePackaging Phase = "packaging" // GPU tick packet assembly
	PhaseQuery     Phase = "query"     // collision query batch
	PhaseSchedule  Phase = "schedule"  // system-level frame scheduling
	PhaseLoad      Phase = "load"      // kernel byte-code loading
)

// Kind categorizes the error
type Kind string

const (
	KindSchemaLocked       Kind = "schema_locked"
	KindCountMismatch      Kind = "count_mismatch"
	KindNotRunnable        Kind = "not_runnable"
	KindNotInitialized     Kind = "not_initialized"
	KindUnresolvedFunction Kind = "unresolved_function"
	KindRegisterOverflow   Kind = "register_overflow"
	KindInvalidInput       Kind = "invalid_input"
	KindNotFound           Kind = "not_found"
	KindOutOfBounds        Kind = "out_of_bounds"
	KindAllocation         Kind = "allocation"
	KindInstantiation      Kind = "instantiation"
)

// Error is the structured error type used throughout the core
type Error struct {
	Value     any
	Cause     error
	Phase     Phase
	Kind      Kind
	Component string
	Name      string
	Detail    string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Component != "" {
		b.WriteString(" in ")
		b.WriteString(e.Component)
	}
	if e.Name != "" {
		b.WriteString(": ")
		b.WriteString(e.Name)
	}

	if e.Detail != "" {
		if e.Name != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap supports errors.Is/As chains
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Phase and Kind; zero-valued fields in target match anything.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	return true
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Component sets the owning component, e.g. "emitter.Fountain"
func (b *Builder) Component(c string) *Builder {
	b.err.Component = c
	return b
}

// Name sets the variable or function name involved
func (b *Builder) Name(n string) *Builder {
	b.err.Name = n
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// SchemaLocked creates an error for layout changes after Finalize
func SchemaLocked(component, variable string) *Error {
	return &Error{
		Phase:     PhaseSchema,
		Kind:      KindSchemaLocked,
		Component: component,
		Name:      variable,
		Detail:    "dataset layout is finalized",
	}
}

// CountMismatch creates an error for declared-vs-provided count differences
func CountMismatch(phase Phase, what string, declared, provided int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindCountMismatch,
		Detail: fmt.Sprintf("%s: declared %d, provided %d", what, declared, provided),
		Value:  provided,
	}
}

// NotRunnable creates an error for programs that cannot execute
func NotRunnable(component string) *Error {
	return &Error{
		Phase:     PhaseExecute,
		Kind:      KindNotRunnable,
		Component: component,
		Detail:    "bound program is not runnable",
	}
}

// NotInitialized creates an error for use-before-init
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:     phase,
		Kind:      KindNotInitialized,
		Component: component,
		Detail:    "not initialized",
	}
}

// Unresolved creates an error for an external function with no provider
func Unresolved(owner, function string) *Error {
	return &Error{
		Phase:  PhaseBind,
		Kind:   KindUnresolvedFunction,
		Name:   function,
		Detail: fmt.Sprintf("no data interface %q provides %q", owner, function),
	}
}

// RegisterOverflow creates an error for register tables exceeding the VM cap
func RegisterOverflow(component string, needed, max int) *Error {
	return &Error{
		Phase:     PhaseExecute,
		Kind:      KindRegisterOverflow,
		Component: component,
		Detail:    fmt.Sprintf("register table needs %d entries, limit is %d", needed, max),
		Value:     needed,
	}
}

// NotFound creates a lookup failure error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Name:   name,
		Detail: fmt.Sprintf("%s not found", what),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, component string, index, length int) *Error {
	return &Error{
		Phase:     phase,
		Kind:      KindOutOfBounds,
		Component: component,
		Detail:    fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:     index,
	}
}

// Instantiation creates a kernel instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Cause:  cause,
		Detail: "kernel instantiation failed",
	}
}

// Load wraps a kernel loading failure
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidInput,
		Cause:  cause,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// UnresolvedFunction identifies a single external call site that failed to bind
type UnresolvedFunction struct {
	Owner    string // declared data-interface owner, e.g. "Collision"
	Function string // call-site function name, e.g. "submit-query"
}

// UnresolvedFunctionsError is returned when an execution-context rebuild fails
// because one or more external call sites had no provider. The context's
// function table is emptied before this is returned; no partial execution
// is possible afterwards.
type UnresolvedFunctionsError struct {
	Functions []UnresolvedFunction
}

func (e *UnresolvedFunctionsError) Error() string {
	var b strings.Builder
	b.WriteString("unresolved external functions: ")
	for i, f := range e.Functions {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Owner)
		b.WriteByte('#')
		b.WriteString(f.Function)
	}
	return b.String()
}
