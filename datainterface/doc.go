// Package datainterface defines the external capability contract callable
// from within simulation programs, and the arena that owns per-instance
// interface state.
//
// Each data interface exposes the same four lifecycle operations: sized
// per-instance data with scoped init/destroy, a per-tick advance that can
// demand a full simulation reset, and external-function resolution for the
// call sites a program declares against it. The execution context treats
// these as a capability contract; an interface that fails to supply a
// requested function fails the context rebuild.
//
// Per-instance state is allocated by size, not by type: the arena hands each
// interface an opaque byte block keyed by a stable offset computed once at
// bind time, and destroys all blocks in declared order.
package datainterface
