// Package tablestore implements the replicated store for tabular cell
// values. Cells are addressed by the 3-tuple (table, row, column) and
// resolve last-write-wins on (timestamp, user id) with a lexical tie-break,
// so the same set of writes converges to the same value on every replica
// regardless of delivery order.
//
// Deleting a column tombstones the cell. Deleting a row writes a row
// tombstone with its own stamp that suppresses every older cell write of
// that row; a raw "remove all cells" would not commute with concurrent
// writes, the stamped tombstone does.
package tablestore
