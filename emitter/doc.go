// Package emitter implements the per-emitter simulation instance: a state
// machine owning one particle dataset, the execution contexts that write
// into it, and the per-tick spawn bookkeeping.
//
// The per-tick contract is strictly ordered: PreTick computes this frame's
// spawn counts (and honors a deferred reset, never mid-tick), Tick advances
// age and runs spawn, update, then event contexts in declaration order, and
// PostTick captures current parameter values into previous-frame slots.
//
// A GPU emitter substitutes a packaging step for the update execution and
// receives results asynchronously; its particle count is latent, reflecting
// the last completed readback rather than the in-flight tick.
package emitter
