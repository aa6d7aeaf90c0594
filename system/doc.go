// Package system drives whole particle systems through the per-frame
// pipeline.
//
// A system instance owns its emitters and ticks them strictly in declaration
// order on one task; cross-instance parallelism happens across different
// system instances on the scheduler's worker pool, never within one.
//
// GPU packaging is a hard suspension boundary: once a tick packet is
// submitted, the simulation side must not touch the packaged emitters'
// datasets or GPU contexts until the instance has been joined. The two join
// primitives are explicit: WaitForAsyncTick blocks without side effects,
// FinalizeAsyncTick also runs the deferred completion path.
//
// Behavior toggles live in a Config passed at construction; there is no
// ambient global state.
package system
