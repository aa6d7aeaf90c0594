// Package collision implements the double-buffered asynchronous trace query
// batch.
//
// Submissions always land in the write buffer; lookups only ever hit the read
// buffer, which holds the prior tick's submissions. Tick flips the two
// exactly once per simulation tick, so a query submitted in tick N resolves
// no earlier than tick N+1. This one-tick latency is the contract that makes
// submission and retrieval race-free across the tick boundary.
//
// The batch stores opaque world handles with each query; it does not own or
// validate the world's lifetime.
package collision
