package engine

import (
	"time"

	"github.com/ValentinKolb/dSync/lib/clock"
	"github.com/ValentinKolb/dSync/lib/session"
	"github.com/ValentinKolb/dSync/lib/store"
	"github.com/ValentinKolb/dSync/lib/topic"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// ICollabEngine is the interface of the collaboration engine.
type ICollabEngine interface {
	// StartSession creates an active session for a user and emits an online
	// presence event. Returns the new session.
	StartSession(userID, displayName string, perms session.Permissions) (*session.Session, error)

	// EndSession removes a session and its cursor entry and emits an offline
	// presence event once the user has no remaining session. Fails with
	// RetCSessionNotFound for unknown or already ended sessions.
	EndSession(sessionID string) error

	// ApplyOperation applies a locally originated operation on behalf of a
	// session: it resolves the author, routes the operation to the owning
	// store, ticks the vector clock and broadcasts the resulting update on
	// the durable updates topic. The returned update is what peers receive.
	// Fails with RetCSessionNotFound without touching any store if the
	// session is unknown.
	ApplyOperation(sessionID string, op store.Operation) (store.Update, error)

	// ApplyRemoteUpdate applies an update received from a peer. Re-delivery
	// of an already applied update id is a silent no-op. Conflict events
	// produced by the resolution are published on the conflicts topic.
	ApplyRemoteUpdate(update store.Update) error

	// UpdateCursor overwrites the cursor state of a session, refreshes its
	// last activity and broadcasts the new state on the cursor topic.
	// Fails with RetCSessionNotFound.
	UpdateCursor(sessionID string, pos session.Position, sel session.Selection, tool string) error

	// UpdatePresence overwrites the presence status of a user and broadcasts
	// it on the presence topic. Never fails.
	UpdatePresence(userID string, status session.Status)

	// ExportState exports all three stores into one snapshot. Two converged
	// engines export byte-identical store blobs.
	ExportState() (store.Snapshot, error)

	// ImportState folds a snapshot into the document. The import is atomic:
	// it either merges all three store blobs or, on the first failure,
	// leaves every store exactly as it was.
	ImportState(snap store.Snapshot) error

	// SubscribeUpdates subscribes to the durable document update stream.
	SubscribeUpdates() *topic.Subscription[store.Update]

	// SubscribeCursors subscribes to the best-effort cursor stream.
	SubscribeCursors() *topic.Subscription[session.CursorState]

	// SubscribePresence subscribes to the best-effort presence stream.
	SubscribePresence() *topic.Subscription[session.PresenceInfo]

	// SubscribeConflicts subscribes to the advisory conflict stream.
	SubscribeConflicts() *topic.Subscription[store.ConflictEvent]

	// ActiveSessions returns all sessions currently in the table.
	ActiveSessions() []*session.Session

	// ActiveCursors returns the latest cursor state of every session.
	ActiveCursors() []session.CursorState

	// GetPresence returns the effective presence of a user, applying the
	// presence timeout.
	GetPresence(userID string) session.PresenceInfo

	// Clock returns a copy of the engine's current vector clock.
	Clock() clock.VectorClock

	// Close shuts the engine down and closes all topics. Durable
	// subscriptions still drain their backlog.
	Close()
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// Config holds the tunables of an engine instance.
type Config struct {
	// PresenceTimeout is the age after which a presence entry reads offline.
	PresenceTimeout time.Duration

	// CursorTopicCapacity and PresenceTopicCapacity bound the per-subscriber
	// buffers of the best-effort topics; the oldest value is dropped on
	// overflow. ConflictTopicCapacity bounds the advisory conflict topic.
	CursorTopicCapacity   int
	PresenceTopicCapacity int
	ConflictTopicCapacity int

	// DedupWindow is the number of recently applied update ids remembered
	// for idempotence checks.
	DedupWindow int

	// ObjectStrategy and TableStrategy select the conflict resolution for
	// keyed writes. Text always merges structurally.
	ObjectStrategy store.Strategy
	TableStrategy  store.Strategy
}

// DefaultConfig returns the configuration used when no overrides are given.
func DefaultConfig() Config {
	return Config{
		PresenceTimeout:       30 * time.Second,
		CursorTopicCapacity:   64,
		PresenceTopicCapacity: 64,
		ConflictTopicCapacity: 128,
		DedupWindow:           4096,
		ObjectStrategy:        store.StrategyLastWriteWins,
		TableStrategy:         store.StrategyLastWriteWins,
	}
}
