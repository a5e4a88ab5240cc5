package session

import (
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Presence Tracking
// --------------------------------------------------------------------------

// Status is the reported availability of a user.
type Status int

const (
	StatusOffline Status = iota
	StatusOnline
	StatusAway
)

func (s Status) String() string {
	switch s {
	case StatusOffline:
		return "offline"
	case StatusOnline:
		return "online"
	case StatusAway:
		return "away"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// PresenceInfo is the presence record of one user.
type PresenceInfo struct {
	UserID   string    `json:"user_id"`
	Status   Status    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

// Tracker holds per-user presence. Entries whose last-seen timestamp is
// older than the timeout read as offline; the expiry check happens lazily
// on every read instead of in a background sweep.
type Tracker struct {
	entries *xsync.MapOf[string, PresenceInfo]
	timeout time.Duration
	now     func() time.Time
}

// NewTracker creates a presence tracker with the given expiry timeout.
func NewTracker(timeout time.Duration) *Tracker {
	return &Tracker{
		entries: xsync.NewMapOf[string, PresenceInfo](),
		timeout: timeout,
		now:     time.Now,
	}
}

// Set overwrites the presence of a user and returns the stored record.
//
// Thread-safety: This method is thread-safe.
func (t *Tracker) Set(userID string, status Status) PresenceInfo {
	info := PresenceInfo{UserID: userID, Status: status, LastSeen: t.now()}
	t.entries.Store(userID, info)
	return info
}

// Get returns the effective presence of a user. Unknown users and expired
// entries read as offline.
func (t *Tracker) Get(userID string) PresenceInfo {
	info, ok := t.entries.Load(userID)
	if !ok {
		return PresenceInfo{UserID: userID, Status: StatusOffline}
	}
	return t.effective(info)
}

// All returns the effective presence of every tracked user.
func (t *Tracker) All() []PresenceInfo {
	out := make([]PresenceInfo, 0, t.entries.Size())
	t.entries.Range(func(_ string, info PresenceInfo) bool {
		out = append(out, t.effective(info))
		return true
	})
	return out
}

// Remove drops the presence entry of a user.
func (t *Tracker) Remove(userID string) {
	t.entries.Delete(userID)
}

// effective applies the lazy expiry check to a stored record.
func (t *Tracker) effective(info PresenceInfo) PresenceInfo {
	if info.Status != StatusOffline && t.now().Sub(info.LastSeen) > t.timeout {
		info.Status = StatusOffline
	}
	return info
}
