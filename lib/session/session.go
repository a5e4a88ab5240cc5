package session

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/ValentinKolb/dSync/lib/store"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Core Types
// --------------------------------------------------------------------------

// State is the lifecycle state of a session.
type State int

const (
	StateConnecting State = iota
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Permissions are set at session creation and immutable afterwards.
type Permissions struct {
	CanEdit    bool
	CanComment bool
	CanShare   bool
	CanExport  bool
	IsAdmin    bool
}

// Editor returns the default permission set for an editing peer.
func Editor() Permissions {
	return Permissions{CanEdit: true, CanComment: true, CanShare: true, CanExport: true}
}

// Session is one connected peer. Identity fields are immutable; the mutable
// activity fields are guarded by mu.
type Session struct {
	ID          string
	UserID      string
	DisplayName string
	Color       string
	Permissions Permissions
	ConnectedAt time.Time

	mu           sync.Mutex
	state        State
	lastActivity time.Time
	tool         string
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Activate transitions a connecting session to active. Ended sessions stay
// ended.
func (s *Session) Activate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateConnecting {
		s.state = StateActive
	}
}

// LastActivity returns the time of the session's most recent action.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Tool returns the tool the session last reported.
func (s *Session) Tool() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tool
}

// Touch refreshes the last-activity timestamp and optionally the tool.
func (s *Session) Touch(now time.Time, tool string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = now
	if tool != "" {
		s.tool = tool
	}
}

// --------------------------------------------------------------------------
// Manager
// --------------------------------------------------------------------------

// Manager is the session table.
type Manager struct {
	sessions *xsync.MapOf[string, *Session]
	now      func() time.Time
}

// NewManager creates an empty session table.
func NewManager() *Manager {
	return &Manager{
		sessions: xsync.NewMapOf[string, *Session](),
		now:      time.Now,
	}
}

// Start registers a new session for a user in the connecting state and
// returns it. The caller activates the session once it has announced the
// peer (presence, subscriptions).
//
// Thread-safety: This method is thread-safe.
func (m *Manager) Start(userID, displayName string, perms Permissions) *Session {
	now := m.now()
	s := &Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		DisplayName:  displayName,
		Color:        colorFor(userID),
		Permissions:  perms,
		ConnectedAt:  now,
		state:        StateConnecting,
		lastActivity: now,
	}
	m.sessions.Store(s.ID, s)
	return s
}

// End removes a session from the table and returns it so the caller can emit
// the matching presence transition. Ending an unknown or already ended
// session fails with RetCSessionNotFound.
//
// Thread-safety: This method is thread-safe.
func (m *Manager) End(sessionID string) (*Session, error) {
	s, ok := m.sessions.LoadAndDelete(sessionID)
	if !ok {
		return nil, store.NewError(store.RetCSessionNotFound,
			fmt.Sprintf("session %q not found", sessionID))
	}
	s.mu.Lock()
	s.state = StateEnded
	s.mu.Unlock()
	return s, nil
}

// Get returns the session for an id, or a RetCSessionNotFound error.
func (m *Manager) Get(sessionID string) (*Session, error) {
	s, ok := m.sessions.Load(sessionID)
	if !ok {
		return nil, store.NewError(store.RetCSessionNotFound,
			fmt.Sprintf("session %q not found", sessionID))
	}
	return s, nil
}

// Active returns all sessions currently in the table.
func (m *Manager) Active() []*Session {
	out := make([]*Session, 0, m.sessions.Size())
	m.sessions.Range(func(_ string, s *Session) bool {
		out = append(out, s)
		return true
	})
	return out
}

// Len returns the number of sessions in the table.
func (m *Manager) Len() int {
	return m.sessions.Size()
}

// --------------------------------------------------------------------------
// Colors
// --------------------------------------------------------------------------

// colorPalette holds the display colors assigned to users. The palette is
// shared unchanged by every replica.
var colorPalette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231",
	"#911eb4", "#46f0f0", "#f032e6", "#bcf60c", "#fabebe",
	"#008080", "#e6beff", "#9a6324", "#800000", "#aaffc3",
}

// colorFor derives a palette color from the user id. The same user id maps
// to the same color on every replica.
func colorFor(userID string) string {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return colorPalette[h.Sum32()%uint32(len(colorPalette))]
}
