package clock

// --------------------------------------------------------------------------
// Vector Clock Type
// --------------------------------------------------------------------------

// VectorClock maps a user id to a monotonically increasing logical counter.
// The zero value is not usable; create instances with New().
type VectorClock map[string]uint64

// New creates an empty vector clock.
func New() VectorClock {
	return make(VectorClock)
}

// Tick increments the counter of the given user and returns the new value.
// Every locally originated operation of a user must tick exactly once.
func (c VectorClock) Tick(userID string) uint64 {
	c[userID]++
	return c[userID]
}

// Merge folds a remote clock into the local one by taking the element-wise
// maximum. It returns true if the remote clock advanced at least one local
// counter, i.e. the remote side had seen events unknown to us. The return
// value is used to avoid re-broadcasting stale updates.
func (c VectorClock) Merge(remote VectorClock) bool {
	advanced := false
	for user, counter := range remote {
		if counter > c[user] {
			c[user] = counter
			advanced = true
		}
	}
	return advanced
}

// Clone returns an independent copy of the clock. The copy is safe to hand
// across goroutine boundaries without further synchronization.
func (c VectorClock) Clone() VectorClock {
	cp := make(VectorClock, len(c))
	for user, counter := range c {
		cp[user] = counter
	}
	return cp
}

// Dominates reports whether every counter in other is covered by this clock.
// An empty clock is dominated by everything.
func (c VectorClock) Dominates(other VectorClock) bool {
	for user, counter := range other {
		if c[user] < counter {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Causal Ordering
// --------------------------------------------------------------------------

// Ordering describes the causal relation between two vector clocks.
type Ordering int

const (
	OrderEqual      Ordering = iota // both clocks are identical
	OrderBefore                     // this clock happened strictly before the other
	OrderAfter                      // this clock happened strictly after the other
	OrderConcurrent                 // neither clock dominates the other
)

func (o Ordering) String() string {
	switch o {
	case OrderEqual:
		return "Equal"
	case OrderBefore:
		return "Before"
	case OrderAfter:
		return "After"
	case OrderConcurrent:
		return "Concurrent"
	default:
		return "Unknown"
	}
}

// Compare determines the causal relation between c and other.
func (c VectorClock) Compare(other VectorClock) Ordering {
	cDominates := c.Dominates(other)
	oDominates := other.Dominates(c)

	switch {
	case cDominates && oDominates:
		return OrderEqual
	case cDominates:
		return OrderAfter
	case oDominates:
		return OrderBefore
	default:
		return OrderConcurrent
	}
}
