// Package clock implements the vector clock used to order and deduplicate
// replicated updates. A vector clock maps a user id to a monotonically
// increasing counter; local operations tick the originating user's counter
// while remote clocks are merged element-wise.
//
// The VectorClock type is a plain value type without internal locking.
// Callers that share a clock between goroutines must synchronize access
// themselves (the engine keeps one clock behind its own mutex).
package clock
