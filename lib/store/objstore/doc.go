// Package objstore implements the replicated store for positioned visual
// objects (shapes, canvases, plots, annotations). Each object is a record
// keyed by its id, holding an opaque payload and a 2D position.
//
// Concurrent writes to the same id resolve by the configured strategy
// (last-write-wins by default) ordered on (timestamp, user id) with a
// lexical tie-break, so every replica picks the same winner regardless of
// delivery order. Deletion tombstones the id permanently: a concurrent or
// later update never resurrects a deleted object.
package objstore
