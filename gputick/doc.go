// Package gputick packages GPU emitter state into self-contained per-frame
// tick packets and drives their asynchronous consumption.
//
// A packet snapshots every active GPU emitter of one system instance: an
// array of per-emitter instance-data records plus one contiguous parameter
// blob, sized so the consuming thread reads it without synchronizing with
// the simulation. A packet is consumed and destroyed exactly once; Destroy
// runs each record's teardown in order before releasing the blob, and
// skipping it leaks any interface-held resources.
//
// The dispatcher models the render-thread boundary: commands execute on a
// single consumer goroutine, and the pending handle offers two join
// primitives - Join blocks until the tick is safe to read without side
// effects, Finalize additionally runs the deferred completion path. Using
// the wrong one when completion handling matters is a correctness bug, not
// a performance one.
package gputick
