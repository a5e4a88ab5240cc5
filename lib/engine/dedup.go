package engine

import "sync"

// recentSet remembers the most recently applied update ids for idempotence
// checks. It is bounded: once full, marking a new id evicts the oldest one.
// Ids that age out of the window fall back to the stores' own idempotent
// merge laws, so the window is a fast path, not a correctness requirement.
type recentSet struct {
	mu   sync.Mutex
	ids  map[string]struct{}
	ring []string
	next int
}

func newRecentSet(capacity int) *recentSet {
	if capacity < 1 {
		capacity = 1
	}
	return &recentSet{
		ids:  make(map[string]struct{}, capacity),
		ring: make([]string, capacity),
	}
}

// seen reports whether an id is currently in the window.
func (r *recentSet) seen(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ids[id]
	return ok
}

// mark records an id, evicting the oldest entry if the window is full.
// Returns false if the id was already present.
func (r *recentSet) mark(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ids[id]; ok {
		return false
	}

	if old := r.ring[r.next]; old != "" {
		delete(r.ids, old)
	}
	r.ring[r.next] = id
	r.next = (r.next + 1) % len(r.ring)
	r.ids[id] = struct{}{}
	return true
}
