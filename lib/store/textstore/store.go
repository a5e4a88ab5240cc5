package textstore

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/ValentinKolb/dSync/lib/store"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// maxDigit is the exclusive upper bound of the identifier space at every
	// path level.
	maxDigit = math.MaxUint32
	// allocBoundary caps the random step used when allocating a new digit
	// between two neighbors. Small steps keep identifier paths short for the
	// common append-at-cursor editing pattern.
	allocBoundary = 64
)

// --------------------------------------------------------------------------
// Core Types
// --------------------------------------------------------------------------

// styleMark is one formatting attribute on an atom, resolved last-write-wins
// by (Ts, User).
type styleMark struct {
	Value string
	Ts    int64
	User  string
}

// atom is a single replicated text element. An atom is visible iff it has a
// value and no tombstone; placeholders (created by out-of-order deletes or
// formats) have an empty value until their insert arrives.
type atom struct {
	id      store.PosID
	value   string
	deleted bool
	styles  map[string]styleMark
}

func (a *atom) visible() bool {
	return !a.deleted && a.value != ""
}

// textStore implements store.IReplicatedStore for the text region.
type textStore struct {
	mu    sync.RWMutex
	atoms []*atom // sorted by id, includes tombstones and placeholders
}

// New creates an empty replicated text store.
func New() store.IReplicatedStore {
	return &textStore{}
}

// NewFactory returns a store.StoreFactory producing empty text stores.
func NewFactory() store.StoreFactory {
	return func() store.IReplicatedStore { return New() }
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *textStore) Category() store.Category { return store.CategoryText }

func (s *textStore) ApplyLocal(op store.Operation, meta store.OpMeta) (store.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch o := op.(type) {
	case *store.TextInsert:
		return s.localInsert(o, meta)
	case *store.TextDelete:
		return s.localDelete(o)
	case *store.TextFormat:
		return s.localFormat(o, meta)
	default:
		return nil, store.NewError(store.RetCInvalidOperation,
			fmt.Sprintf("text store cannot apply %T", op))
	}
}

func (s *textStore) ApplyRemote(op store.Operation, meta store.OpMeta) (*store.ConflictEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch o := op.(type) {
	case *store.TextInsert:
		for i := range o.Atoms {
			s.mergeAtom(o.Atoms[i].ID, o.Atoms[i].Value, false, nil)
		}
	case *store.TextDelete:
		for _, id := range o.IDs {
			s.mergeAtom(id, "", true, nil)
		}
	case *store.TextFormat:
		for _, id := range o.IDs {
			s.mergeAtom(id, "", false, styleMarks(o.Style, meta))
		}
	default:
		return nil, store.NewError(store.RetCInvalidOperation,
			fmt.Sprintf("text store cannot apply %T", op))
	}

	// Structural merge reconciles silently; there is nothing to surface.
	return nil, nil
}

func (s *textStore) Merge(snapshot []byte) error {
	recs, err := decodeAtoms(snapshot)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range recs {
		marks := make(map[string]styleMark, len(recs[i].Styles))
		for _, sr := range recs[i].Styles {
			marks[sr.Key] = styleMark{Value: sr.Value, Ts: sr.Ts, User: sr.User}
		}
		s.mergeAtom(recs[i].ID, recs[i].Value, recs[i].Deleted, marks)
	}
	return nil
}

func (s *textStore) Export() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := make([]atomRec, len(s.atoms))
	for i, a := range s.atoms {
		recs[i] = atomRec{
			ID:      a.id,
			Value:   a.value,
			Deleted: a.deleted,
			Styles:  sortedStyles(a.styles),
		}
	}
	return encodeAtoms(recs)
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// String returns the currently visible text.
func (s *textStore) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := ""
	for _, a := range s.atoms {
		if a.visible() {
			out += a.value
		}
	}
	return out
}

// Len returns the number of visible characters.
func (s *textStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, a := range s.atoms {
		if a.visible() {
			n++
		}
	}
	return n
}

// StyleAt returns the resolved style attributes of the visible character at
// the given offset.
func (s *textStore) StyleAt(offset int) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := 0
	for _, a := range s.atoms {
		if !a.visible() {
			continue
		}
		if i == offset {
			style := make(map[string]string, len(a.styles))
			for k, m := range a.styles {
				style[k] = m.Value
			}
			return style
		}
		i++
	}
	return nil
}

// --------------------------------------------------------------------------
// Local Mutation Helpers
// --------------------------------------------------------------------------

func (s *textStore) localInsert(op *store.TextInsert, meta store.OpMeta) (store.Operation, error) {
	if op.Position < 0 {
		return nil, store.NewError(store.RetCInvalidOperation, "insert position must not be negative")
	}
	if op.Text == "" {
		return nil, store.NewError(store.RetCInvalidOperation, "insert text must not be empty")
	}

	// Resolve the visible offset to a slice index; inserts beyond the end
	// clamp to appending.
	idx := s.sliceIndexOfVisible(op.Position)

	var left store.PosID
	if idx > 0 {
		left = s.atoms[idx-1].id
	}
	var right store.PosID
	if idx < len(s.atoms) {
		right = s.atoms[idx].id
	}

	runes := []rune(op.Text)
	inserted := make([]*atom, len(runes))
	replicable := make([]store.TextAtom, len(runes))
	for i, r := range runes {
		id := pidBetween(left, right, meta.UserID, meta.UpdateID)
		inserted[i] = &atom{id: id, value: string(r)}
		replicable[i] = store.TextAtom{ID: id, Value: string(r)}
		left = id
	}

	s.atoms = append(s.atoms[:idx], append(inserted, s.atoms[idx:]...)...)

	return &store.TextInsert{Position: op.Position, Atoms: replicable}, nil
}

func (s *textStore) localDelete(op *store.TextDelete) (store.Operation, error) {
	if op.Position < 0 || op.Length < 0 {
		return nil, store.NewError(store.RetCInvalidOperation, "delete range must not be negative")
	}

	targets := s.visibleRange(op.Position, op.Length)
	ids := make([]store.PosID, len(targets))
	for i, a := range targets {
		a.deleted = true
		ids[i] = a.id
	}

	return &store.TextDelete{Position: op.Position, Length: op.Length, IDs: ids}, nil
}

func (s *textStore) localFormat(op *store.TextFormat, meta store.OpMeta) (store.Operation, error) {
	if op.Position < 0 || op.Length < 0 {
		return nil, store.NewError(store.RetCInvalidOperation, "format range must not be negative")
	}
	if len(op.Style) == 0 {
		return nil, store.NewError(store.RetCInvalidOperation, "format style must not be empty")
	}

	marks := styleMarks(op.Style, meta)
	targets := s.visibleRange(op.Position, op.Length)
	ids := make([]store.PosID, len(targets))
	for i, a := range targets {
		applyMarks(a, marks)
		ids[i] = a.id
	}

	return &store.TextFormat{Position: op.Position, Length: op.Length, Style: op.Style, IDs: ids}, nil
}

// sliceIndexOfVisible returns the index in the atom slice of the atom at the
// given visible offset, or len(atoms) if the offset is at or beyond the end.
func (s *textStore) sliceIndexOfVisible(offset int) int {
	seen := 0
	for i, a := range s.atoms {
		if !a.visible() {
			continue
		}
		if seen == offset {
			return i
		}
		seen++
	}
	return len(s.atoms)
}

// visibleRange collects up to length visible atoms starting at the given
// visible offset. Ranges extending past the end clamp.
func (s *textStore) visibleRange(offset, length int) []*atom {
	var out []*atom
	seen := 0
	for _, a := range s.atoms {
		if !a.visible() {
			continue
		}
		if seen >= offset && len(out) < length {
			out = append(out, a)
		}
		seen++
		if len(out) == length {
			break
		}
	}
	return out
}

// --------------------------------------------------------------------------
// Merge Helpers
// --------------------------------------------------------------------------

// mergeAtom joins one replicated atom into the sequence: a new id is
// inserted at its sorted position, an existing one is updated field-wise
// (value fills placeholders, tombstones are permanent, styles resolve
// last-write-wins). The operation is idempotent.
func (s *textStore) mergeAtom(id store.PosID, value string, deleted bool, marks map[string]styleMark) {
	idx := sort.Search(len(s.atoms), func(i int) bool {
		return s.atoms[i].id.Compare(id) >= 0
	})

	if idx < len(s.atoms) && s.atoms[idx].id.Compare(id) == 0 {
		a := s.atoms[idx]
		if a.value == "" && value != "" {
			a.value = value
		}
		a.deleted = a.deleted || deleted
		applyMarks(a, marks)
		return
	}

	a := &atom{id: id, value: value, deleted: deleted}
	applyMarks(a, marks)
	s.atoms = append(s.atoms[:idx], append([]*atom{a}, s.atoms[idx:]...)...)
}

// applyMarks folds style marks into an atom with per-attribute
// last-write-wins resolution, tie-broken by user id.
func applyMarks(a *atom, marks map[string]styleMark) {
	if len(marks) == 0 {
		return
	}
	if a.styles == nil {
		a.styles = make(map[string]styleMark, len(marks))
	}
	for key, mark := range marks {
		cur, ok := a.styles[key]
		if !ok || mark.Ts > cur.Ts || (mark.Ts == cur.Ts && mark.User > cur.User) {
			a.styles[key] = mark
		}
	}
}

func styleMarks(style map[string]string, meta store.OpMeta) map[string]styleMark {
	marks := make(map[string]styleMark, len(style))
	for k, v := range style {
		marks[k] = styleMark{Value: v, Ts: meta.Timestamp, User: meta.UserID}
	}
	return marks
}

// --------------------------------------------------------------------------
// Position Identifier Allocation
// --------------------------------------------------------------------------

// pidBetween allocates a fresh position identifier strictly between left and
// right for the given site and update tag. Nil bounds denote the begin/end
// sentinels. The walk descends the digit path until a level with room is
// found; digits are stepped by a small random amount so interleaved sites
// spread out instead of racing for adjacent digits. The tag makes the
// allocated identifier unique even when the same site picks the same digit
// on another replica.
func pidBetween(left, right store.PosID, site, tag string) store.PosID {
	var pid store.PosID

	// rightBounds tracks whether right still shares the path prefix built so
	// far; once the paths diverge, deeper levels are unbounded above.
	rightBounds := true

	for depth := 0; ; depth++ {
		var lid store.Ident
		if depth < len(left) {
			lid = left[depth]
		}

		var rDigit uint32 = maxDigit
		if rightBounds && depth < len(right) {
			rDigit = right[depth].Digit
		}

		if gap := rDigit - lid.Digit; gap > 1 {
			span := uint64(gap - 1)
			if span > allocBoundary {
				span = allocBoundary
			}
			step := uint32(1 + rand.Uint64N(span))
			return append(pid, store.Ident{Digit: lid.Digit + step, Site: site, Tag: tag})
		}

		// No room at this level: extend the path along left and retry one
		// level deeper.
		pid = append(pid, lid)
		if rightBounds {
			rightBounds = depth < len(right) && right[depth] == lid
		}
	}
}
