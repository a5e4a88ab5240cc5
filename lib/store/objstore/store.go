package objstore

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

// stamp orders writes: greater (Ts, By) wins under last-write-wins.
type stamp struct {
	Ts int64
	By string
}

// record is the stored state of one object id. Type, payload and position
// carry independent stamps so concurrent creates, moves and payload updates
// commute instead of one suppressing the other. Only ObjectCreate advances
// TypeStamp, so a payload update arriving before its create never blocks the
// type from being set. Records are stored by value and never mutated in
// place.
type record struct {
	Type         string
	TypeStamp    stamp
	Payload      []byte
	PayloadStamp stamp
	X, Y         float64
	PosStamp     stamp
	Deleted      bool
	DeleteStamp  stamp
}

// Object is the read-side view of a live object.
type Object struct {
	ID        string
	Type      string
	Payload   []byte
	X, Y      float64
	UpdatedAt int64
	UpdatedBy string
}

// objStore implements store.IReplicatedStore for visual objects.
type objStore struct {
	strategy store.Strategy
	objects  *xsync.MapOf[string, record]
	// exportMu serializes Export against writers so an export never observes
	// a half-applied multi-key merge. Regular writes only take the read side.
	exportMu sync.RWMutex
}

// New creates an empty object store resolving concurrent writes with the
// given strategy. StrategyStructuralMerge is not applicable to keyed objects
// and behaves like last-write-wins.
func New(strategy store.Strategy) store.IReplicatedStore {
	return &objStore{
		strategy: strategy,
		objects:  xsync.NewMapOf[string, record](),
	}
}

// NewFactory returns a store.StoreFactory producing empty object stores.
func NewFactory(strategy store.Strategy) store.StoreFactory {
	return func() store.IReplicatedStore { return New(strategy) }
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *objStore) Category() store.Category { return store.CategoryObject }

func (s *objStore) ApplyLocal(op store.Operation, meta store.OpMeta) (store.Operation, error) {
	// Object operations are already replicable (ids are caller-assigned),
	// so the local path is the remote path without conflict surfacing.
	if _, err := s.apply(op, meta); err != nil {
		return nil, err
	}
	return op, nil
}

func (s *objStore) ApplyRemote(op store.Operation, meta store.OpMeta) (*store.ConflictEvent, error) {
	return s.apply(op, meta)
}

func (s *objStore) Merge(snapshot []byte) error {
	recs, err := decodeObjects(snapshot)
	if err != nil {
		return err
	}

	s.exportMu.RLock()
	defer s.exportMu.RUnlock()

	for i := range recs {
		incoming := recs[i].record()
		s.objects.Compute(recs[i].ID, func(old record, loaded bool) (record, bool) {
			if !loaded {
				return incoming, false
			}
			return s.join(old, incoming), false
		})
	}
	return nil
}

func (s *objStore) Export() ([]byte, error) {
	s.exportMu.Lock()
	defer s.exportMu.Unlock()

	recs := make([]objectRec, 0, s.objects.Size())
	s.objects.Range(func(id string, rec record) bool {
		recs = append(recs, newObjectRec(id, rec))
		return true
	})
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })

	return encodeObjects(recs)
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Get returns the live (non-tombstoned) object for an id.
func (s *objStore) Get(id string) (Object, bool) {
	rec, ok := s.objects.Load(id)
	if !ok || rec.Deleted {
		return Object{}, false
	}

	updated := rec.PayloadStamp
	if rec.PosStamp.Ts > updated.Ts {
		updated = rec.PosStamp
	}
	if rec.TypeStamp.Ts > updated.Ts {
		updated = rec.TypeStamp
	}
	return Object{
		ID:        id,
		Type:      rec.Type,
		Payload:   rec.Payload,
		X:         rec.X,
		Y:         rec.Y,
		UpdatedAt: updated.Ts,
		UpdatedBy: updated.By,
	}, true
}

// Len returns the number of live objects.
func (s *objStore) Len() int {
	n := 0
	s.objects.Range(func(_ string, rec record) bool {
		if !rec.Deleted {
			n++
		}
		return true
	})
	return n
}

// --------------------------------------------------------------------------
// Write Helpers
// --------------------------------------------------------------------------

func (s *objStore) apply(op store.Operation, meta store.OpMeta) (*store.ConflictEvent, error) {
	incoming := stamp{Ts: meta.Timestamp, By: meta.UserID}

	switch o := op.(type) {
	case *store.ObjectCreate:
		return s.write(o.ObjectID, incoming, func(old record) record {
			if s.beats(incoming, old.TypeStamp) {
				old.Type = o.ObjectType
				old.TypeStamp = incoming
			}
			if s.beats(incoming, old.PayloadStamp) {
				old.Payload = o.Payload
				old.PayloadStamp = incoming
			}
			if s.beats(incoming, old.PosStamp) {
				old.X, old.Y = o.X, o.Y
				old.PosStamp = incoming
			}
			return old
		}), nil
	case *store.ObjectUpdate:
		return s.write(o.ObjectID, incoming, func(old record) record {
			if s.beats(incoming, old.PayloadStamp) {
				old.Payload = o.Payload
				old.PayloadStamp = incoming
			}
			return old
		}), nil
	case *store.ObjectMove:
		return s.write(o.ObjectID, incoming, func(old record) record {
			if s.beats(incoming, old.PosStamp) {
				old.X, old.Y = o.X, o.Y
				old.PosStamp = incoming
			}
			return old
		}), nil
	case *store.ObjectDelete:
		s.exportMu.RLock()
		defer s.exportMu.RUnlock()
		s.objects.Compute(o.ObjectID, func(old record, loaded bool) (record, bool) {
			return s.tombstone(old, incoming), false
		})
		return nil, nil
	default:
		return nil, store.NewError(store.RetCInvalidOperation,
			fmt.Sprintf("object store cannot apply %T", op))
	}
}

// write applies a field-wise conditional mutation to an id. Tombstoned ids
// reject every write (delete-wins). Returns an advisory conflict event when
// the write was suppressed, or on every overwrite under user-choice.
func (s *objStore) write(id string, incoming stamp, mutate func(old record) record) *store.ConflictEvent {
	s.exportMu.RLock()
	defer s.exportMu.RUnlock()

	var event *store.ConflictEvent

	s.objects.Compute(id, func(old record, loaded bool) (record, bool) {
		if loaded && old.Deleted {
			event = s.conflictEvent(id, old.DeleteStamp.By, incoming)
			return old, false
		}

		updated := mutate(old)
		if loaded && updated.TypeStamp == old.TypeStamp &&
			updated.PayloadStamp == old.PayloadStamp && updated.PosStamp == old.PosStamp {
			// every field lost against a newer write
			event = s.conflictEvent(id, old.PayloadStamp.By, incoming)
			return old, false
		}
		if s.strategy == store.StrategyUserChoice && loaded {
			event = s.conflictEvent(id, incoming.By, old.PayloadStamp)
		}
		return updated, false
	})

	return event
}

// tombstone marks a record deleted. Payload and position are cleared; the
// greater of the delete stamps is kept so re-deliveries and concurrent
// deletes resolve identically everywhere.
func (s *objStore) tombstone(old record, incoming stamp) record {
	del := incoming
	if old.Deleted && beatsLWW(old.DeleteStamp, del) {
		del = old.DeleteStamp
	}
	return record{Deleted: true, DeleteStamp: del}
}

// join merges two record states field-wise; delete-wins applies first.
func (s *objStore) join(a, b record) record {
	if a.Deleted || b.Deleted {
		del := a.DeleteStamp
		if !a.Deleted || (b.Deleted && beatsLWW(b.DeleteStamp, del)) {
			del = b.DeleteStamp
		}
		return record{Deleted: true, DeleteStamp: del}
	}

	out := a
	if s.beats(b.TypeStamp, a.TypeStamp) {
		out.Type = b.Type
		out.TypeStamp = b.TypeStamp
	}
	if s.beats(b.PayloadStamp, a.PayloadStamp) {
		out.Payload = b.Payload
		out.PayloadStamp = b.PayloadStamp
	}
	if s.beats(b.PosStamp, a.PosStamp) {
		out.X, out.Y = b.X, b.Y
		out.PosStamp = b.PosStamp
	}
	return out
}

func (s *objStore) conflictEvent(id, winner string, suppressed stamp) *store.ConflictEvent {
	return &store.ConflictEvent{
		Category:  store.CategoryObject,
		Key:       id,
		Winner:    winner,
		Loser:     suppressed.By,
		Strategy:  s.strategy,
		Timestamp: suppressed.Ts,
	}
}

// beats reports whether stamp a wins against the current stamp b under the
// store's strategy. Identical stamps lose, keeping re-deliveries no-ops.
func (s *objStore) beats(a, b stamp) bool {
	if a == b {
		return false
	}
	if s.strategy == store.StrategyFirstWriteWins {
		return b == (stamp{}) || !beatsLWW(a, b)
	}
	return beatsLWW(a, b)
}

// beatsLWW is the deterministic last-write-wins order: greater timestamp
// wins, equal timestamps tie-break by lexically greater user id.
func beatsLWW(a, b stamp) bool {
	return a.Ts > b.Ts || (a.Ts == b.Ts && a.By > b.By)
}
