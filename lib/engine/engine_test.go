package engine

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/ValentinKolb/dSync/lib/session"
	"github.com/ValentinKolb/dSync/lib/store"
)

func newTestEngine(t *testing.T) ICollabEngine {
	t.Helper()
	e := New(DefaultConfig())
	t.Cleanup(e.Close)
	return e
}

func startSession(t *testing.T, e ICollabEngine, user string) string {
	t.Helper()
	sess, err := e.StartSession(user, user, session.Editor())
	if err != nil {
		t.Fatalf("start session failed: %v", err)
	}
	return sess.ID
}

func apply(t *testing.T, e ICollabEngine, sessionID string, op store.Operation) store.Update {
	t.Helper()
	update, err := e.ApplyOperation(sessionID, op)
	if err != nil {
		t.Fatalf("apply operation failed: %v", err)
	}
	return update
}

func relay(t *testing.T, to ICollabEngine, updates ...store.Update) {
	t.Helper()
	for _, u := range updates {
		if err := to.ApplyRemoteUpdate(u); err != nil {
			t.Fatalf("remote apply failed: %v", err)
		}
	}
}

func requireConverged(t *testing.T, a, b ICollabEngine) {
	t.Helper()
	snapA, err := a.ExportState()
	if err != nil {
		t.Fatalf("export a failed: %v", err)
	}
	snapB, err := b.ExportState()
	if err != nil {
		t.Fatalf("export b failed: %v", err)
	}
	if !bytes.Equal(snapA.TextStore, snapB.TextStore) {
		t.Error("text stores diverged")
	}
	if !bytes.Equal(snapA.ObjectStore, snapB.ObjectStore) {
		t.Error("object stores diverged")
	}
	if !bytes.Equal(snapA.TableStore, snapB.TableStore) {
		t.Error("table stores diverged")
	}
}

// TestConcurrentTextInsertsConverge covers two replicas inserting at the
// same offset and exchanging their updates in both directions.
func TestConcurrentTextInsertsConverge(t *testing.T) {
	a := newTestEngine(t)
	b := newTestEngine(t)
	sa := startSession(t, a, "alice")
	sb := startSession(t, b, "bob")

	ua := apply(t, a, sa, &store.TextInsert{Position: 0, Text: "abc"})
	ub := apply(t, b, sb, &store.TextInsert{Position: 0, Text: "xyz"})

	relay(t, b, ua)
	relay(t, a, ub)

	requireConverged(t, a, b)
}

// TestTableAndObjectEditsConverge exchanges a mixed batch of edits in
// different orders on two replicas.
func TestTableAndObjectEditsConverge(t *testing.T) {
	a := newTestEngine(t)
	b := newTestEngine(t)
	sa := startSession(t, a, "alice")
	sb := startSession(t, b, "bob")

	fromA := []store.Update{
		apply(t, a, sa, &store.TableInsert{Table: "t1", Row: "r1", Col: "c1", Value: []byte("5")}),
		apply(t, a, sa, &store.ObjectCreate{ObjectID: "shape1", ObjectType: "rect", Payload: json.RawMessage(`{"color":"red"}`), X: 1, Y: 1}),
		apply(t, a, sa, &store.ObjectUpdate{ObjectID: "shape1", Payload: json.RawMessage(`{"color":"blue"}`)}),
	}
	fromB := []store.Update{
		apply(t, b, sb, &store.TableUpdate{Table: "t1", Row: "r1", Col: "c1", Value: []byte("7")}),
		apply(t, b, sb, &store.ObjectDelete{ObjectID: "shape1"}),
	}

	// deliver cross-traffic in opposite orders
	relay(t, b, fromA...)
	for i := len(fromB) - 1; i >= 0; i-- {
		relay(t, a, fromB[i])
	}

	requireConverged(t, a, b)
}

// TestDuplicateDeliveryIsNoOp re-delivers the same update several times.
func TestDuplicateDeliveryIsNoOp(t *testing.T) {
	a := newTestEngine(t)
	b := newTestEngine(t)
	sa := startSession(t, a, "alice")

	u := apply(t, a, sa, &store.TextInsert{Position: 0, Text: "hello"})

	relay(t, b, u, u, u)

	requireConverged(t, a, b)

	clock := b.Clock()
	if clock["alice"] != 1 {
		t.Errorf("expected alice counter 1 after duplicates, got %d", clock["alice"])
	}
}

// TestEchoedOwnUpdateIsIgnored feeds an engine its own broadcast back.
func TestEchoedOwnUpdateIsIgnored(t *testing.T) {
	a := newTestEngine(t)
	sa := startSession(t, a, "alice")

	u := apply(t, a, sa, &store.TextInsert{Position: 0, Text: "hi"})
	before, _ := a.ExportState()

	if err := a.ApplyRemoteUpdate(u); err != nil {
		t.Fatalf("echoed update errored: %v", err)
	}

	after, _ := a.ExportState()
	if !bytes.Equal(before.TextStore, after.TextStore) {
		t.Error("echoed update mutated the text store")
	}
}

// TestUnknownSessionRejectedWithoutMutation verifies the error path of
// ApplyOperation leaves all stores untouched.
func TestUnknownSessionRejectedWithoutMutation(t *testing.T) {
	e := newTestEngine(t)
	before, _ := e.ExportState()

	_, err := e.ApplyOperation("no-such-session", &store.TextInsert{Position: 0, Text: "x"})
	if store.CodeOf(err) != store.RetCSessionNotFound {
		t.Fatalf("expected SessionNotFound, got %v", err)
	}

	after, _ := e.ExportState()
	if !bytes.Equal(before.TextStore, after.TextStore) ||
		!bytes.Equal(before.ObjectStore, after.ObjectStore) ||
		!bytes.Equal(before.TableStore, after.TableStore) {
		t.Error("rejected operation mutated a store")
	}

	if err := e.UpdateCursor("no-such-session", session.Position{}, session.Selection{}, "pen"); store.CodeOf(err) != store.RetCSessionNotFound {
		t.Errorf("expected SessionNotFound from cursor update, got %v", err)
	}
	if err := e.EndSession("no-such-session"); store.CodeOf(err) != store.RetCSessionNotFound {
		t.Errorf("expected SessionNotFound from end, got %v", err)
	}
}

// TestExportImportRoundTrip covers a fresh replica catching up from a
// snapshot instead of the update stream.
func TestExportImportRoundTrip(t *testing.T) {
	a := newTestEngine(t)
	sa := startSession(t, a, "alice")
	apply(t, a, sa, &store.TextInsert{Position: 0, Text: "hello world"})
	apply(t, a, sa, &store.ObjectCreate{ObjectID: "o1", ObjectType: "rect", X: 2, Y: 3})
	apply(t, a, sa, &store.TableInsert{Table: "t", Row: "r", Col: "c", Value: []byte("42")})

	snap, err := a.ExportState()
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	c := newTestEngine(t)
	if err := c.ImportState(snap); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	requireConverged(t, a, c)
}

// TestImportMergesWithLocalEdits verifies importing does not discard state
// the importing replica already has.
func TestImportMergesWithLocalEdits(t *testing.T) {
	a := newTestEngine(t)
	b := newTestEngine(t)
	sa := startSession(t, a, "alice")
	sb := startSession(t, b, "bob")

	apply(t, a, sa, &store.ObjectCreate{ObjectID: "from-a", ObjectType: "rect"})
	apply(t, b, sb, &store.ObjectCreate{ObjectID: "from-b", ObjectType: "plot"})

	snap, _ := a.ExportState()
	if err := b.ImportState(snap); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	// a catches up through the normal stream; both must now hold both objects
	bSnap, _ := b.ExportState()
	if err := a.ImportState(bSnap); err != nil {
		t.Fatalf("reverse import failed: %v", err)
	}

	requireConverged(t, a, b)
}

// TestImportIsAtomic verifies a failing import leaves every store unchanged.
func TestImportIsAtomic(t *testing.T) {
	e := newTestEngine(t)
	s := startSession(t, e, "alice")
	apply(t, e, s, &store.TextInsert{Position: 0, Text: "keep me"})
	apply(t, e, s, &store.TableInsert{Table: "t", Row: "r", Col: "c", Value: []byte("1")})

	before, _ := e.ExportState()

	good, _ := e.ExportState()
	bad := store.Snapshot{
		TextStore:   good.TextStore,
		ObjectStore: good.ObjectStore,
		TableStore:  []byte("garbage that is no snapshot"),
	}
	err := e.ImportState(bad)
	if store.CodeOf(err) != store.RetCIncompatibleSnapshot {
		t.Fatalf("expected IncompatibleSnapshot, got %v", err)
	}

	after, _ := e.ExportState()
	if !bytes.Equal(before.TextStore, after.TextStore) ||
		!bytes.Equal(before.ObjectStore, after.ObjectStore) ||
		!bytes.Equal(before.TableStore, after.TableStore) {
		t.Error("failed import must leave all stores unchanged")
	}
}

// TestSessionLifecycle covers start, cursor traffic, end, and the resulting
// presence transitions.
func TestSessionLifecycle(t *testing.T) {
	e := newTestEngine(t)

	presSub := e.SubscribePresence()
	cursorSub := e.SubscribeCursors()

	sess, err := e.StartSession("alice", "Alice", session.Editor())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if sess.State() != session.StateActive {
		t.Errorf("started session must be active, got %v", sess.State())
	}

	for i := 0; i < 3; i++ {
		if err := e.UpdateCursor(sess.ID, session.Position{X: float64(i), Y: 1}, session.Selection{}, "pen"); err != nil {
			t.Fatalf("cursor update %d failed: %v", i, err)
		}
	}
	if len(e.ActiveCursors()) != 1 {
		t.Fatalf("expected 1 active cursor, got %d", len(e.ActiveCursors()))
	}

	if err := e.EndSession(sess.ID); err != nil {
		t.Fatalf("end failed: %v", err)
	}

	if len(e.ActiveSessions()) != 0 {
		t.Error("session table must be empty after end")
	}
	if len(e.ActiveCursors()) != 0 {
		t.Error("cursor table must be empty after end")
	}
	if got := e.GetPresence("alice").Status; got != session.StatusOffline {
		t.Errorf("expected offline, got %v", got)
	}

	// presence stream emitted online first, offline last
	var statuses []session.Status
	for len(statuses) < 2 {
		select {
		case info := <-presSub.Recv():
			statuses = append(statuses, info.Status)
		case <-time.After(time.Second):
			t.Fatalf("timeout, presence events so far: %v", statuses)
		}
	}
	if statuses[0] != session.StatusOnline || statuses[len(statuses)-1] != session.StatusOffline {
		t.Errorf("expected online then offline, got %v", statuses)
	}

	// cursor stream carried the session's updates
	select {
	case state := <-cursorSub.Recv():
		if state.UserID != "alice" || state.Tool != "pen" {
			t.Errorf("unexpected cursor event: %+v", state)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for cursor event")
	}
}

// TestSecondSessionKeepsUserOnline verifies ending one of two sessions of
// the same user does not emit an offline transition.
func TestSecondSessionKeepsUserOnline(t *testing.T) {
	e := newTestEngine(t)

	s1, _ := e.StartSession("alice", "Alice", session.Editor())
	s2, _ := e.StartSession("alice", "Alice (tablet)", session.Editor())

	if err := e.EndSession(s1.ID); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if got := e.GetPresence("alice").Status; got != session.StatusOnline {
		t.Errorf("user with a remaining session must stay online, got %v", got)
	}

	if err := e.EndSession(s2.ID); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if got := e.GetPresence("alice").Status; got != session.StatusOffline {
		t.Errorf("expected offline after last session ends, got %v", got)
	}
}

// TestEndSessionClearsPresenceEntry verifies the offline broadcast is the
// last trace of a departed user; the tracker entry itself is dropped.
func TestEndSessionClearsPresenceEntry(t *testing.T) {
	e := newTestEngine(t)

	s, _ := e.StartSession("alice", "Alice", session.Editor())
	if err := e.EndSession(s.ID); err != nil {
		t.Fatalf("end failed: %v", err)
	}

	if got := e.GetPresence("alice").Status; got != session.StatusOffline {
		t.Errorf("expected offline, got %v", got)
	}
	if entries := e.(*collabEngine).presence.All(); len(entries) != 0 {
		t.Errorf("presence tracker must hold no entry after last session ends, got %v", entries)
	}
}

// TestUpdatesAreBroadcast verifies subscribers see applied operations.
func TestUpdatesAreBroadcast(t *testing.T) {
	e := newTestEngine(t)
	s := startSession(t, e, "alice")

	sub := e.SubscribeUpdates()
	want := apply(t, e, s, &store.TextInsert{Position: 0, Text: "hi"})

	select {
	case got := <-sub.Recv():
		if got.UpdateID != want.UpdateID {
			t.Errorf("broadcast id %q does not match applied id %q", got.UpdateID, want.UpdateID)
		}
		if got.UserID != "alice" || got.SessionID != s {
			t.Errorf("unexpected envelope: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast")
	}
}

// TestConflictEventsArePublished verifies a suppressed write surfaces on the
// conflict topic of the receiving replica.
func TestConflictEventsArePublished(t *testing.T) {
	a := newTestEngine(t)
	b := newTestEngine(t)
	sa := startSession(t, a, "alice")
	sb := startSession(t, b, "bob")

	create := apply(t, a, sa, &store.ObjectCreate{ObjectID: "o", ObjectType: "rect"})
	relay(t, b, create)

	// bob's newer write lands on b first; alice's older write then loses there
	conflictSub := b.SubscribeConflicts()
	stale := apply(t, a, sa, &store.ObjectUpdate{ObjectID: "o", Payload: json.RawMessage(`"stale"`)})
	time.Sleep(2 * time.Millisecond) // ensure a later wall-clock stamp
	apply(t, b, sb, &store.ObjectUpdate{ObjectID: "o", Payload: json.RawMessage(`"fresh"`)})

	relay(t, b, stale)

	select {
	case event := <-conflictSub.Recv():
		if event.Key != "o" || event.Loser != "alice" {
			t.Errorf("unexpected conflict event: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for conflict event")
	}
}

// TestClockAdvances tracks the vector clock through local and remote applies.
func TestClockAdvances(t *testing.T) {
	a := newTestEngine(t)
	b := newTestEngine(t)
	sa := startSession(t, a, "alice")
	sb := startSession(t, b, "bob")

	apply(t, a, sa, &store.TextInsert{Position: 0, Text: "x"})
	u := apply(t, a, sa, &store.TextInsert{Position: 1, Text: "y"})

	if got := a.Clock()["alice"]; got != 2 {
		t.Errorf("expected alice counter 2, got %d", got)
	}

	relay(t, b, u)
	apply(t, b, sb, &store.TextInsert{Position: 0, Text: "z"})

	clock := b.Clock()
	if clock["alice"] != 2 || clock["bob"] != 1 {
		t.Errorf("unexpected merged clock: %v", clock)
	}
}

func TestRecentSetEvictsOldest(t *testing.T) {
	r := newRecentSet(2)

	if !r.mark("a") || !r.mark("b") {
		t.Fatal("fresh ids must mark")
	}
	if r.mark("a") {
		t.Error("duplicate id must not mark again")
	}

	// marking a third id evicts the oldest
	r.mark("c")
	if r.seen("a") {
		t.Error("oldest id must have been evicted")
	}
	if !r.seen("b") || !r.seen("c") {
		t.Error("recent ids must survive")
	}
}
