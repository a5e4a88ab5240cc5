// Package topic provides in-process fan-out of engine events to any number
// of subscribers. A topic hands every published value to every subscription
// that existed at publish time; subscriptions consume through a receive-only
// channel so they compose with select statements.
//
// Two delivery modes exist:
//
//   - Durable topics back each subscription with an unbounded lock-free
//     queue. Nothing is ever dropped and a slow subscriber never blocks
//     publishers, it only grows its own backlog. Used for document updates,
//     where losing a value would break replica convergence.
//
//   - Best-effort topics back each subscription with a small bounded buffer
//     and drop the oldest value when the buffer is full. Used for cursor and
//     presence events, where only the latest state matters.
//
// Thread Safety:
//
//	All topic and subscription methods are safe for concurrent use.
package topic
