package textstore

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/ValentinKolb/dSync/lib/store"
	storetesting "github.com/ValentinKolb/dSync/lib/store/testing"
)

func meta(user string, ts int64) store.OpMeta {
	return store.OpMeta{UpdateID: fmt.Sprintf("%s-%d", user, ts), UserID: user, Timestamp: ts}
}

// script builds a set of replicable text operations by recording local edits
// from two independent scribes (so some operations are causally concurrent).
func script(t *testing.T) []storetesting.Step {
	t.Helper()

	alice := New()
	opInsert, err := alice.ApplyLocal(&store.TextInsert{Position: 0, Text: "Hello"}, meta("alice", 100))
	if err != nil {
		t.Fatalf("scribe insert failed: %v", err)
	}
	opDelete, err := alice.ApplyLocal(&store.TextDelete{Position: 1, Length: 2}, meta("alice", 200))
	if err != nil {
		t.Fatalf("scribe delete failed: %v", err)
	}
	opFormat, err := alice.ApplyLocal(&store.TextFormat{Position: 0, Length: 2, Style: map[string]string{"bold": "true"}}, meta("alice", 300))
	if err != nil {
		t.Fatalf("scribe format failed: %v", err)
	}

	bob := New()
	opConcurrent, err := bob.ApplyLocal(&store.TextInsert{Position: 0, Text: "yo "}, meta("bob", 150))
	if err != nil {
		t.Fatalf("scribe insert failed: %v", err)
	}

	return []storetesting.Step{
		{Op: opInsert, Meta: meta("alice", 100)},
		{Op: opDelete, Meta: meta("alice", 200)},
		{Op: opFormat, Meta: meta("alice", 300)},
		{Op: opConcurrent, Meta: meta("bob", 150)},
	}
}

func Test(t *testing.T) {
	storetesting.RunReplicatedStoreTests(t, "TextStore", func() store.IReplicatedStore {
		return New()
	}, script(t))
}

func TestConcurrentInsertsAtSameOffset(t *testing.T) {
	replicaA := New()
	replicaB := New()

	opA, err := replicaA.ApplyLocal(&store.TextInsert{Position: 0, Text: "Hello, World!"}, meta("alice", 100))
	if err != nil {
		t.Fatalf("local insert failed: %v", err)
	}
	opB, err := replicaB.ApplyLocal(&store.TextInsert{Position: 0, Text: "Hi "}, meta("bob", 100))
	if err != nil {
		t.Fatalf("local insert failed: %v", err)
	}

	if _, err := replicaA.ApplyRemote(opB, meta("bob", 100)); err != nil {
		t.Fatalf("remote apply failed: %v", err)
	}
	if _, err := replicaB.ApplyRemote(opA, meta("alice", 100)); err != nil {
		t.Fatalf("remote apply failed: %v", err)
	}

	textA := replicaA.(*textStore).String()
	textB := replicaB.(*textStore).String()

	if textA != textB {
		t.Fatalf("replicas diverged: %q vs %q", textA, textB)
	}
	if len([]rune(textA)) != len("Hello, World!")+len("Hi ") {
		t.Errorf("characters lost in merge: %q", textA)
	}

	exportA, _ := replicaA.Export()
	exportB, _ := replicaB.Export()
	if !bytes.Equal(exportA, exportB) {
		t.Error("exports differ after convergence")
	}
}

// TestSameUserOnTwoReplicasConverges covers one user editing through two
// replicas at once (two devices). Both replicas insert at the same offset
// with the same user id; the digit allocation can collide, so uniqueness
// must come from the update id carried in each identifier.
func TestSameUserOnTwoReplicasConverges(t *testing.T) {
	for trial := 0; trial < 300; trial++ {
		replicaA := New()
		replicaB := New()

		metaA := store.OpMeta{UpdateID: fmt.Sprintf("upd-a-%d", trial), UserID: "alice", Timestamp: 100}
		metaB := store.OpMeta{UpdateID: fmt.Sprintf("upd-b-%d", trial), UserID: "alice", Timestamp: 100}

		opA, err := replicaA.ApplyLocal(&store.TextInsert{Position: 0, Text: "A"}, metaA)
		if err != nil {
			t.Fatalf("trial %d: local insert failed: %v", trial, err)
		}
		opB, err := replicaB.ApplyLocal(&store.TextInsert{Position: 0, Text: "B"}, metaB)
		if err != nil {
			t.Fatalf("trial %d: local insert failed: %v", trial, err)
		}

		if _, err := replicaA.ApplyRemote(opB, metaB); err != nil {
			t.Fatalf("trial %d: remote apply failed: %v", trial, err)
		}
		if _, err := replicaB.ApplyRemote(opA, metaA); err != nil {
			t.Fatalf("trial %d: remote apply failed: %v", trial, err)
		}

		textA := replicaA.(*textStore).String()
		textB := replicaB.(*textStore).String()
		if textA != textB {
			t.Fatalf("trial %d: replicas diverged: %q vs %q", trial, textA, textB)
		}
		if len(textA) != 2 {
			t.Fatalf("trial %d: characters lost in merge: %q", trial, textA)
		}

		exportA, _ := replicaA.Export()
		exportB, _ := replicaB.Export()
		if !bytes.Equal(exportA, exportB) {
			t.Fatalf("trial %d: exports differ after convergence", trial)
		}
	}
}

func TestDeleteArrivingBeforeInsert(t *testing.T) {
	origin := New()
	opInsert, err := origin.ApplyLocal(&store.TextInsert{Position: 0, Text: "abc"}, meta("alice", 100))
	if err != nil {
		t.Fatalf("local insert failed: %v", err)
	}
	opDelete, err := origin.ApplyLocal(&store.TextDelete{Position: 1, Length: 1}, meta("alice", 200))
	if err != nil {
		t.Fatalf("local delete failed: %v", err)
	}

	// deliver out of order to a fresh replica
	late := New()
	if _, err := late.ApplyRemote(opDelete, meta("alice", 200)); err != nil {
		t.Fatalf("early delete failed: %v", err)
	}
	if _, err := late.ApplyRemote(opInsert, meta("alice", 100)); err != nil {
		t.Fatalf("late insert failed: %v", err)
	}

	if got := late.(*textStore).String(); got != "ac" {
		t.Errorf("expected %q, got %q", "ac", got)
	}

	exportOrigin, _ := origin.Export()
	exportLate, _ := late.Export()
	if !bytes.Equal(exportOrigin, exportLate) {
		t.Error("out-of-order delivery diverged from origin")
	}
}

func TestFormatResolvesLastWriteWins(t *testing.T) {
	origin := New()
	opInsert, _ := origin.ApplyLocal(&store.TextInsert{Position: 0, Text: "x"}, meta("alice", 100))
	opOld, _ := origin.ApplyLocal(&store.TextFormat{Position: 0, Length: 1, Style: map[string]string{"color": "red"}}, meta("alice", 200))

	other := New()
	if _, err := other.ApplyRemote(opInsert, meta("alice", 100)); err != nil {
		t.Fatalf("remote insert failed: %v", err)
	}
	opNew, _ := other.ApplyLocal(&store.TextFormat{Position: 0, Length: 1, Style: map[string]string{"color": "blue"}}, meta("bob", 300))

	// exchange in both directions
	if _, err := origin.ApplyRemote(opNew, meta("bob", 300)); err != nil {
		t.Fatalf("remote format failed: %v", err)
	}
	if _, err := other.ApplyRemote(opOld, meta("alice", 200)); err != nil {
		t.Fatalf("remote format failed: %v", err)
	}

	for name, s := range map[string]store.IReplicatedStore{"origin": origin, "other": other} {
		if got := s.(*textStore).StyleAt(0)["color"]; got != "blue" {
			t.Errorf("%s: expected newer style to win, got color=%q", name, got)
		}
	}
}

func TestLocalInsertValidation(t *testing.T) {
	s := New()

	_, err := s.ApplyLocal(&store.TextInsert{Position: -1, Text: "x"}, meta("alice", 100))
	if store.CodeOf(err) != store.RetCInvalidOperation {
		t.Errorf("negative position: expected RetCInvalidOperation, got %v", err)
	}

	_, err = s.ApplyLocal(&store.TextInsert{Position: 0, Text: ""}, meta("alice", 100))
	if store.CodeOf(err) != store.RetCInvalidOperation {
		t.Errorf("empty text: expected RetCInvalidOperation, got %v", err)
	}

	if s.(*textStore).Len() != 0 {
		t.Error("rejected operations must not mutate the store")
	}
}

func TestSequentialEditingSession(t *testing.T) {
	s := New()

	type edit struct {
		op   store.Operation
		want string
	}
	edits := []edit{
		{&store.TextInsert{Position: 0, Text: "world"}, "world"},
		{&store.TextInsert{Position: 0, Text: "hello "}, "hello world"},
		{&store.TextInsert{Position: 11, Text: "!"}, "hello world!"},
		{&store.TextDelete{Position: 0, Length: 6}, "world!"},
		{&store.TextInsert{Position: 5, Text: "s"}, "worlds!"},
	}

	for i, e := range edits {
		if _, err := s.ApplyLocal(e.op, meta("alice", int64(100+i))); err != nil {
			t.Fatalf("edit %d failed: %v", i, err)
		}
		if got := s.(*textStore).String(); got != e.want {
			t.Fatalf("edit %d: expected %q, got %q", i, e.want, got)
		}
	}
}
