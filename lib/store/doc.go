// Package store defines the common contract for the replicated document
// stores and the value types that cross replica boundaries: operations,
// update envelopes, conflict events and snapshots.
//
// The package focuses on:
//   - A unified interface (IReplicatedStore) implemented by the three store
//     backends (text, object, table), allowing the engine to route operations
//     without knowing store internals
//   - A tagged operation union with a single codec table, so every operation
//     kind round-trips through the update envelope
//   - A structured error system using typed return codes, shared by all
//     stores and the engine facade
//
// Merge laws: every IReplicatedStore implementation must guarantee that
// applying the same set of remote operations in any order, with any number
// of duplicates, yields the same exported state (commutative, associative,
// idempotent). The law suite in lib/store/testing verifies this for each
// implementation.
//
// Implementations:
//
//   - Text store (textstore): a sequence CRDT with stable per-atom position
//     identifiers. Available in "github.com/ValentinKolb/dSync/lib/store/textstore".
//   - Object store (objstore): a last-write-wins map of positioned visual
//     objects with delete-wins tombstones. Available in
//     "github.com/ValentinKolb/dSync/lib/store/objstore".
//   - Table store (tablestore): last-write-wins tabular cells keyed by
//     (table, row, column) with column and row tombstones. Available in
//     "github.com/ValentinKolb/dSync/lib/store/tablestore".
package store
