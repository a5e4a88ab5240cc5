// Package engine provides the collaboration engine, the facade composing
// the replicated stores, the vector clock, the session and presence tables
// and the fan-out topics into one coordinated object.
//
// The engine owns all mutable collaboration state exclusively. Callers
// interact through the ICollabEngine interface: local edits enter via
// ApplyOperation, peer traffic enters via ApplyRemoteUpdate, and everything
// the engine emits (document updates, cursor moves, presence transitions,
// conflict notifications) leaves through topic subscriptions.
//
// Concurrency model: there is no global lock. Each store synchronizes its
// own mutations, the session, cursor and presence tables are independently
// synchronized, and the vector clock has its own short-held mutex. An
// operation therefore touches at most one store lock at a time. The only
// engine-wide lock is a read-write mutex around the store pointers, taken
// in write mode solely by ImportState when it swaps in the staged stores.
//
// Convergence: two engines that exchange their update streams (in any
// order, with duplicates) and merge each other's exports converge to
// byte-identical document state. Idempotence of re-delivered updates is
// enforced twice, by a bounded recent-id set in the engine and by the
// stores' own merge laws.
package engine
