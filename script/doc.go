// Package script implements the execution context: the binder that connects
// a compiled program, its parameter store and its data interfaces to one VM
// invocation per tick.
//
// A context is rebuilt whenever its data-interface set changes. The rebuild
// re-resolves every compiled external call site against the live interface
// array by owner name; any mismatch or unresolved function empties the
// function table and fails the tick before anything executes. There is no
// partial execution.
package script
