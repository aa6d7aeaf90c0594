// Package errors provides structured error types for the ember simulation core.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type includes rich context: the owning component, the
// variable or function name involved, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseBind, errors.KindUnresolvedFunction).
//		Component("emitter.Fountain").
//		Name("sample-curve").
//		Detail("no data interface named %q", "Curve").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.CountMismatch(errors.PhaseBind, "external functions", 3, 2)
//	err := errors.NotRunnable("emitter.Fountain.update")
//
// All errors implement the standard error interface and support errors.Is/As.
//
// The package maps the core's failure taxonomy onto Go conventions: schema
// and initialization failures return *Error; deterministic capping (register
// overflow, event-spawn bursts) never errors; expected-absent data returns
// zero values; caller contract violations panic.
package errors
