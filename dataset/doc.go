// Package dataset implements the columnar, double-buffered store of
// per-particle attributes.
//
// A Dataset owns exactly two backing buffers. The current buffer is immutable
// and may be read by the renderer; the destination buffer is exclusively
// owned by the task simulating the emitter. EndSimulate swaps the roles once
// per tick.
//
// The schema is declared once through AddVariable and locked by Finalize.
// Requesting data from an uninitialized dataset returns nil rather than
// panicking; callers null-check before dereferencing.
package dataset
