// Package dispatch holds the per-session inbound dispatch queue.
//
// The read loop of a session never runs message handlers itself: it binds the
// handler to the session and message and enqueues the resulting Call. The tick
// loop later drains every session's queue on its own goroutine, so slow
// handlers (data analysis, broadcasts) never stall socket reads.
//
// Guarantees: a call enqueued before Drain starts is executed by that Drain or
// an earlier one, exactly once, and in enqueue order. The queue is unbounded.
package dispatch
