package session

import (
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Cursor Tracking
// --------------------------------------------------------------------------

// Position is a cursor location on the shared canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Selection is a half-open range of selected text atoms.
type Selection struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// CursorState is the latest reported cursor of one session.
type CursorState struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Position  Position  `json:"position"`
	Selection Selection `json:"selection"`
	Tool      string    `json:"tool"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CursorTable holds the latest cursor state per session. Each report
// overwrites the previous one; there is no history.
type CursorTable struct {
	cursors *xsync.MapOf[string, CursorState]
}

// NewCursorTable creates an empty cursor table.
func NewCursorTable() *CursorTable {
	return &CursorTable{cursors: xsync.NewMapOf[string, CursorState]()}
}

// Update overwrites the cursor state of a session and returns the new state.
//
// Thread-safety: This method is thread-safe.
func (c *CursorTable) Update(state CursorState) CursorState {
	c.cursors.Store(state.SessionID, state)
	return state
}

// Remove drops the cursor entry of a session.
func (c *CursorTable) Remove(sessionID string) {
	c.cursors.Delete(sessionID)
}

// Get returns the cursor state of a session.
func (c *CursorTable) Get(sessionID string) (CursorState, bool) {
	return c.cursors.Load(sessionID)
}

// All returns the cursor states of every tracked session.
func (c *CursorTable) All() []CursorState {
	out := make([]CursorState, 0, c.cursors.Size())
	c.cursors.Range(func(_ string, state CursorState) bool {
		out = append(out, state)
		return true
	})
	return out
}

// Len returns the number of tracked cursors.
func (c *CursorTable) Len() int {
	return c.cursors.Size()
}
