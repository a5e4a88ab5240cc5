package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dSync/lib/clock"
	"github.com/ValentinKolb/dSync/lib/session"
	"github.com/ValentinKolb/dSync/lib/store"
	"github.com/ValentinKolb/dSync/lib/store/objstore"
	"github.com/ValentinKolb/dSync/lib/store/tablestore"
	"github.com/ValentinKolb/dSync/lib/store/textstore"
	"github.com/ValentinKolb/dSync/lib/topic"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Metrics
// --------------------------------------------------------------------------

var (
	opsAppliedTotal      = metrics.GetOrCreateCounter(`dsync_operations_applied_total`)
	opsRejectedTotal     = metrics.GetOrCreateCounter(`dsync_operations_rejected_total`)
	remoteAppliedTotal   = metrics.GetOrCreateCounter(`dsync_remote_updates_applied_total`)
	updatesDedupedTotal  = metrics.GetOrCreateCounter(`dsync_remote_updates_deduplicated_total`)
	conflictsTotal       = metrics.GetOrCreateCounter(`dsync_conflicts_total`)
	snapshotsExported    = metrics.GetOrCreateCounter(`dsync_snapshots_exported_total`)
	snapshotsImported    = metrics.GetOrCreateCounter(`dsync_snapshots_imported_total`)
	cursorUpdatesTotal   = metrics.GetOrCreateCounter(`dsync_cursor_updates_total`)
	presenceUpdatesTotal = metrics.GetOrCreateCounter(`dsync_presence_updates_total`)
)

// --------------------------------------------------------------------------
// Engine
// --------------------------------------------------------------------------

// collabEngine implements ICollabEngine.
type collabEngine struct {
	cfg Config

	// mu guards the store pointers. Read-locked for the duration of every
	// store access, write-locked only by ImportState when it swaps in the
	// staged stores. The stores synchronize their own mutations.
	mu         sync.RWMutex
	textStore  store.IReplicatedStore
	objStore   store.IReplicatedStore
	tableStore store.IReplicatedStore

	textFactory  store.StoreFactory
	objFactory   store.StoreFactory
	tableFactory store.StoreFactory

	clockMu sync.Mutex
	clock   clock.VectorClock

	sessions *session.Manager
	cursors  *session.CursorTable
	presence *session.Tracker

	updates      *topic.Topic[store.Update]
	cursorTopic  *topic.Topic[session.CursorState]
	presTopic    *topic.Topic[session.PresenceInfo]
	confTopic    *topic.Topic[store.ConflictEvent]

	dedup  *recentSet
	closed atomic.Bool
}

// New creates a collaboration engine with the given configuration.
func New(cfg Config) ICollabEngine {
	textFactory := textstore.NewFactory()
	objFactory := objstore.NewFactory(cfg.ObjectStrategy)
	tableFactory := tablestore.NewFactory(cfg.TableStrategy)

	return &collabEngine{
		cfg:          cfg,
		textStore:    textFactory(),
		objStore:     objFactory(),
		tableStore:   tableFactory(),
		textFactory:  textFactory,
		objFactory:   objFactory,
		tableFactory: tableFactory,
		clock:        clock.New(),
		sessions:     session.NewManager(),
		cursors:      session.NewCursorTable(),
		presence:     session.NewTracker(cfg.PresenceTimeout),
		updates:      topic.NewDurable[store.Update](),
		cursorTopic:  topic.NewBestEffort[session.CursorState](cfg.CursorTopicCapacity),
		presTopic:    topic.NewBestEffort[session.PresenceInfo](cfg.PresenceTopicCapacity),
		confTopic:    topic.NewBestEffort[store.ConflictEvent](cfg.ConflictTopicCapacity),
		dedup:        newRecentSet(cfg.DedupWindow),
	}
}

// NewDefault creates an engine with DefaultConfig.
func NewDefault() ICollabEngine {
	return New(DefaultConfig())
}

// --------------------------------------------------------------------------
// Session Lifecycle (docu see engine.ICollabEngine)
// --------------------------------------------------------------------------

func (e *collabEngine) StartSession(userID, displayName string, perms session.Permissions) (*session.Session, error) {
	sess := e.sessions.Start(userID, displayName, perms)
	e.UpdatePresence(userID, session.StatusOnline)
	sess.Activate()
	return sess, nil
}

func (e *collabEngine) EndSession(sessionID string) error {
	sess, err := e.sessions.End(sessionID)
	if err != nil {
		return err
	}
	e.cursors.Remove(sessionID)

	// the user goes offline only once their last session is gone; the
	// presence entry is dropped after the broadcast so departed users do
	// not accumulate in the tracker
	for _, other := range e.sessions.Active() {
		if other.UserID == sess.UserID {
			return nil
		}
	}
	e.UpdatePresence(sess.UserID, session.StatusOffline)
	e.presence.Remove(sess.UserID)
	return nil
}

// --------------------------------------------------------------------------
// Operation Dispatch (docu see engine.ICollabEngine)
// --------------------------------------------------------------------------

func (e *collabEngine) ApplyOperation(sessionID string, op store.Operation) (store.Update, error) {
	if op == nil {
		opsRejectedTotal.Inc()
		return store.Update{}, store.NewError(store.RetCInvalidOperation, "nil operation")
	}

	sess, err := e.sessions.Get(sessionID)
	if err != nil {
		opsRejectedTotal.Inc()
		return store.Update{}, err
	}

	now := time.Now()
	meta := store.OpMeta{
		UpdateID:  uuid.NewString(),
		UserID:    sess.UserID,
		Timestamp: now.UnixMicro(),
	}

	e.mu.RLock()
	replicable, err := e.storeFor(op.Category()).ApplyLocal(op, meta)
	e.mu.RUnlock()
	if err != nil {
		opsRejectedTotal.Inc()
		return store.Update{}, err
	}

	e.clockMu.Lock()
	e.clock.Tick(sess.UserID)
	clockCopy := e.clock.Clone()
	e.clockMu.Unlock()

	update := store.Update{
		UpdateID:  meta.UpdateID,
		SessionID: sessionID,
		UserID:    sess.UserID,
		Timestamp: meta.Timestamp,
		Operation: replicable,
		Clock:     clockCopy,
	}

	// remember our own id so an echoed broadcast is a no-op
	e.dedup.mark(update.UpdateID)
	sess.Touch(now, "")

	e.updates.Publish(update)
	opsAppliedTotal.Inc()
	return update, nil
}

func (e *collabEngine) ApplyRemoteUpdate(update store.Update) error {
	if update.Operation == nil {
		return store.NewError(store.RetCInvalidOperation, "update carries no operation")
	}
	if e.dedup.seen(update.UpdateID) {
		updatesDedupedTotal.Inc()
		return nil
	}

	e.mu.RLock()
	event, err := e.storeFor(update.Operation.Category()).ApplyRemote(update.Operation, update.Meta())
	e.mu.RUnlock()
	if err != nil {
		return err
	}

	e.clockMu.Lock()
	e.clock.Merge(update.Clock)
	e.clockMu.Unlock()

	e.dedup.mark(update.UpdateID)
	remoteAppliedTotal.Inc()

	if event != nil {
		conflictsTotal.Inc()
		e.confTopic.Publish(*event)
	}
	return nil
}

// storeFor routes a category to its store. Callers hold e.mu.
func (e *collabEngine) storeFor(cat store.Category) store.IReplicatedStore {
	switch cat {
	case store.CategoryText:
		return e.textStore
	case store.CategoryObject:
		return e.objStore
	default:
		return e.tableStore
	}
}

// --------------------------------------------------------------------------
// Cursor & Presence (docu see engine.ICollabEngine)
// --------------------------------------------------------------------------

func (e *collabEngine) UpdateCursor(sessionID string, pos session.Position, sel session.Selection, tool string) error {
	sess, err := e.sessions.Get(sessionID)
	if err != nil {
		return err
	}

	now := time.Now()
	sess.Touch(now, tool)

	state := e.cursors.Update(session.CursorState{
		SessionID: sessionID,
		UserID:    sess.UserID,
		Position:  pos,
		Selection: sel,
		Tool:      tool,
		UpdatedAt: now,
	})
	e.cursorTopic.Publish(state)
	cursorUpdatesTotal.Inc()
	return nil
}

func (e *collabEngine) UpdatePresence(userID string, status session.Status) {
	info := e.presence.Set(userID, status)
	e.presTopic.Publish(info)
	presenceUpdatesTotal.Inc()
}

// --------------------------------------------------------------------------
// Snapshot Export / Import (docu see engine.ICollabEngine)
// --------------------------------------------------------------------------

func (e *collabEngine) ExportState() (store.Snapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var snap store.Snapshot
	var err error
	if snap.TextStore, err = e.textStore.Export(); err != nil {
		return store.Snapshot{}, err
	}
	if snap.ObjectStore, err = e.objStore.Export(); err != nil {
		return store.Snapshot{}, err
	}
	if snap.TableStore, err = e.tableStore.Export(); err != nil {
		return store.Snapshot{}, err
	}
	snap.ExportedAt = time.Now().UnixMicro()

	snapshotsExported.Inc()
	return snap, nil
}

func (e *collabEngine) ImportState(snap store.Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Stage fresh stores, merge the incoming blobs and then the current
	// local state into them. Only if all merges succeed are the staged
	// stores swapped in; any failure leaves the live stores untouched.
	staged := []struct {
		fresh store.IReplicatedStore
		live  store.IReplicatedStore
		blob  []byte
		name  string
	}{
		{e.textFactory(), e.textStore, snap.TextStore, "text"},
		{e.objFactory(), e.objStore, snap.ObjectStore, "object"},
		{e.tableFactory(), e.tableStore, snap.TableStore, "table"},
	}

	for _, s := range staged {
		if s.blob != nil {
			if err := s.fresh.Merge(s.blob); err != nil {
				return err
			}
		}
		current, err := s.live.Export()
		if err != nil {
			return store.NewError(store.RetCInternalError,
				fmt.Sprintf("failed to export live %s store during import: %v", s.name, err))
		}
		if err := s.fresh.Merge(current); err != nil {
			return err
		}
	}

	e.textStore = staged[0].fresh
	e.objStore = staged[1].fresh
	e.tableStore = staged[2].fresh

	snapshotsImported.Inc()
	return nil
}

// --------------------------------------------------------------------------
// Subscriptions & Reads (docu see engine.ICollabEngine)
// --------------------------------------------------------------------------

func (e *collabEngine) SubscribeUpdates() *topic.Subscription[store.Update] {
	return e.updates.Subscribe()
}

func (e *collabEngine) SubscribeCursors() *topic.Subscription[session.CursorState] {
	return e.cursorTopic.Subscribe()
}

func (e *collabEngine) SubscribePresence() *topic.Subscription[session.PresenceInfo] {
	return e.presTopic.Subscribe()
}

func (e *collabEngine) SubscribeConflicts() *topic.Subscription[store.ConflictEvent] {
	return e.confTopic.Subscribe()
}

func (e *collabEngine) ActiveSessions() []*session.Session {
	return e.sessions.Active()
}

func (e *collabEngine) ActiveCursors() []session.CursorState {
	return e.cursors.All()
}

func (e *collabEngine) GetPresence(userID string) session.PresenceInfo {
	return e.presence.Get(userID)
}

func (e *collabEngine) Clock() clock.VectorClock {
	e.clockMu.Lock()
	defer e.clockMu.Unlock()
	return e.clock.Clone()
}

func (e *collabEngine) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	e.updates.Close()
	e.cursorTopic.Close()
	e.presTopic.Close()
	e.confTopic.Close()
}
