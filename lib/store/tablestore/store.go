package tablestore

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ValentinKolb/dSync/lib/store"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Core Types
// --------------------------------------------------------------------------

// CellKey addresses one cell.
type CellKey struct {
	Table string
	Row   string
	Col   string
}

// RowKey addresses one row for row-level tombstones.
type RowKey struct {
	Table string
	Row   string
}

// stamp orders writes: greater (Ts, By) wins under last-write-wins.
type stamp struct {
	Ts int64
	By string
}

// cell is the stored state of one cell. Cells are stored by value.
type cell struct {
	Value   []byte
	Stamp   stamp
	Deleted bool // column tombstone
}

// tableStore implements store.IReplicatedStore for tabular cells.
type tableStore struct {
	strategy store.Strategy
	cells    *xsync.MapOf[CellKey, cell]
	rows     *xsync.MapOf[RowKey, stamp]
	// exportMu serializes Export against writers so an export never observes
	// a half-applied merge. Regular writes only take the read side.
	exportMu sync.RWMutex
}

// New creates an empty table store resolving concurrent writes with the
// given strategy. StrategyStructuralMerge is not applicable to keyed cells
// and behaves like last-write-wins.
func New(strategy store.Strategy) store.IReplicatedStore {
	return &tableStore{
		strategy: strategy,
		cells:    xsync.NewMapOf[CellKey, cell](),
		rows:     xsync.NewMapOf[RowKey, stamp](),
	}
}

// NewFactory returns a store.StoreFactory producing empty table stores.
func NewFactory(strategy store.Strategy) store.StoreFactory {
	return func() store.IReplicatedStore { return New(strategy) }
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *tableStore) Category() store.Category { return store.CategoryTable }

func (s *tableStore) ApplyLocal(op store.Operation, meta store.OpMeta) (store.Operation, error) {
	// Table operations are already replicable (cell addresses are caller
	// supplied), so the local path is the remote path without surfacing.
	if _, err := s.apply(op, meta); err != nil {
		return nil, err
	}
	return op, nil
}

func (s *tableStore) ApplyRemote(op store.Operation, meta store.OpMeta) (*store.ConflictEvent, error) {
	return s.apply(op, meta)
}

func (s *tableStore) Merge(snapshot []byte) error {
	snap, err := decodeTable(snapshot)
	if err != nil {
		return err
	}

	s.exportMu.RLock()
	defer s.exportMu.RUnlock()

	for _, rec := range snap.Cells {
		incoming := cell{Value: rec.Value, Stamp: stamp{Ts: rec.Ts, By: rec.By}, Deleted: rec.Deleted}
		s.cells.Compute(rec.Key, func(old cell, loaded bool) (cell, bool) {
			if !loaded || s.beats(incoming.Stamp, old.Stamp) {
				return incoming, false
			}
			return old, false
		})
	}
	for _, rec := range snap.Rows {
		s.mergeRowTombstone(rec.Key, stamp{Ts: rec.Ts, By: rec.By})
	}
	return nil
}

func (s *tableStore) Export() ([]byte, error) {
	s.exportMu.Lock()
	defer s.exportMu.Unlock()

	snap := tableSnap{}
	s.cells.Range(func(key CellKey, c cell) bool {
		snap.Cells = append(snap.Cells, cellRec{Key: key, Value: c.Value, Ts: c.Stamp.Ts, By: c.Stamp.By, Deleted: c.Deleted})
		return true
	})
	s.rows.Range(func(key RowKey, st stamp) bool {
		snap.Rows = append(snap.Rows, rowRec{Key: key, Ts: st.Ts, By: st.By})
		return true
	})

	sort.Slice(snap.Cells, func(i, j int) bool { return cellKeyLess(snap.Cells[i].Key, snap.Cells[j].Key) })
	sort.Slice(snap.Rows, func(i, j int) bool { return rowKeyLess(snap.Rows[i].Key, snap.Rows[j].Key) })

	return encodeTable(snap)
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Get returns the resolved value of a cell. A cell reads as absent if it was
// never written, is column-tombstoned, or is suppressed by a newer row
// tombstone.
func (s *tableStore) Get(table, row, col string) ([]byte, bool) {
	c, ok := s.cells.Load(CellKey{Table: table, Row: row, Col: col})
	if !ok || c.Deleted {
		return nil, false
	}
	if rowTomb, ok := s.rows.Load(RowKey{Table: table, Row: row}); ok && beatsLWW(rowTomb, c.Stamp) {
		return nil, false
	}
	return c.Value, true
}

// Len returns the number of readable cells.
func (s *tableStore) Len() int {
	n := 0
	s.cells.Range(func(key CellKey, c cell) bool {
		if _, ok := s.Get(key.Table, key.Row, key.Col); ok {
			n++
		}
		return true
	})
	return n
}

// --------------------------------------------------------------------------
// Write Helpers
// --------------------------------------------------------------------------

func (s *tableStore) apply(op store.Operation, meta store.OpMeta) (*store.ConflictEvent, error) {
	incoming := stamp{Ts: meta.Timestamp, By: meta.UserID}

	switch o := op.(type) {
	case *store.TableInsert:
		return s.writeCell(CellKey{Table: o.Table, Row: o.Row, Col: o.Col},
			cell{Value: o.Value, Stamp: incoming}), nil
	case *store.TableUpdate:
		return s.writeCell(CellKey{Table: o.Table, Row: o.Row, Col: o.Col},
			cell{Value: o.Value, Stamp: incoming}), nil
	case *store.TableDelete:
		if o.Col != "" {
			// column delete tombstones the single cell
			return s.writeCell(CellKey{Table: o.Table, Row: o.Row, Col: o.Col},
				cell{Stamp: incoming, Deleted: true}), nil
		}
		s.exportMu.RLock()
		defer s.exportMu.RUnlock()
		s.mergeRowTombstone(RowKey{Table: o.Table, Row: o.Row}, incoming)
		return nil, nil
	default:
		return nil, store.NewError(store.RetCInvalidOperation,
			fmt.Sprintf("table store cannot apply %T", op))
	}
}

// writeCell applies a conditional write: the incoming cell replaces the
// current one only if its stamp wins under the configured strategy. Returns
// an advisory conflict event if the write was suppressed, or on every
// overwrite under user-choice.
func (s *tableStore) writeCell(key CellKey, incoming cell) *store.ConflictEvent {
	s.exportMu.RLock()
	defer s.exportMu.RUnlock()

	var event *store.ConflictEvent

	s.cells.Compute(key, func(old cell, loaded bool) (cell, bool) {
		if loaded && !s.beats(incoming.Stamp, old.Stamp) {
			event = s.conflictEvent(key, old.Stamp.By, incoming.Stamp)
			return old, false
		}
		if s.strategy == store.StrategyUserChoice && loaded {
			event = s.conflictEvent(key, incoming.Stamp.By, old.Stamp)
		}
		return incoming, false
	})

	return event
}

// mergeRowTombstone keeps the greater row tombstone stamp.
func (s *tableStore) mergeRowTombstone(key RowKey, incoming stamp) {
	s.rows.Compute(key, func(old stamp, loaded bool) (stamp, bool) {
		if loaded && beatsLWW(old, incoming) {
			return old, false
		}
		return incoming, false
	})
}

func (s *tableStore) conflictEvent(key CellKey, winner string, suppressed stamp) *store.ConflictEvent {
	return &store.ConflictEvent{
		Category:  store.CategoryTable,
		Key:       fmt.Sprintf("%s/%s/%s", key.Table, key.Row, key.Col),
		Winner:    winner,
		Loser:     suppressed.By,
		Strategy:  s.strategy,
		Timestamp: suppressed.Ts,
	}
}

// beats reports whether stamp a wins against the current stamp b under the
// store's strategy. Identical stamps lose, keeping re-deliveries no-ops.
func (s *tableStore) beats(a, b stamp) bool {
	if a == b {
		return false
	}
	if s.strategy == store.StrategyFirstWriteWins {
		return !beatsLWW(a, b)
	}
	return beatsLWW(a, b)
}

// beatsLWW is the deterministic last-write-wins order: greater timestamp
// wins, equal timestamps tie-break by lexically greater user id.
func beatsLWW(a, b stamp) bool {
	return a.Ts > b.Ts || (a.Ts == b.Ts && a.By > b.By)
}

// --------------------------------------------------------------------------
// Key Ordering (for deterministic exports)
// --------------------------------------------------------------------------

func cellKeyLess(a, b CellKey) bool {
	if a.Table != b.Table {
		return a.Table < b.Table
	}
	if a.Row != b.Row {
		return a.Row < b.Row
	}
	return a.Col < b.Col
}

func rowKeyLess(a, b RowKey) bool {
	if a.Table != b.Table {
		return a.Table < b.Table
	}
	return a.Row < b.Row
}
