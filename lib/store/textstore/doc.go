// Package textstore implements the replicated rich-text store as a sequence
// CRDT. Every character is an atom bound to a stable position identifier (a
// digit/site path, see store.PosID); identifiers are allocated between the
// atom's neighbors at insert time and never change afterwards. Because
// replicas merge by identifier instead of by integer offset, concurrent
// insertions and deletions at nearby offsets commute.
//
// Deletions tombstone the atom so the deletion itself replicates safely.
// Style attributes (bold, color, ...) attach per atom and per attribute key
// with last-write-wins resolution.
//
// Out-of-order delivery is handled with placeholders: a delete or format
// that arrives before its insert creates an empty atom under the target
// identifier; the insert fills in the value later. Visibility requires both
// a value and no tombstone, so placeholders never render.
package textstore
