package testing

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/ValentinKolb/dSync/lib/store"
)

// Step is one scripted replicable operation: the operation in stable-id form
// plus the metadata it was stamped with at its origin replica.
type Step struct {
	Op   store.Operation
	Meta store.OpMeta
}

// StoreFactory creates a fresh, empty store instance for one test case.
type StoreFactory func() store.IReplicatedStore

// RunReplicatedStoreTests runs the merge-law suite for a store
// implementation. The script must contain replicable operations (i.e. the
// forms returned by ApplyLocal); the suite replays it in different orders,
// with duplicates, and through snapshot merges, and requires byte-identical
// exports everywhere.
func RunReplicatedStoreTests(t *testing.T, name string, factory StoreFactory, script []Step) {
	t.Run(name, func(t *testing.T) {
		t.Run("ConvergenceInOrderVsReversed", func(t *testing.T) {
			testConvergence(t, factory, script, reversed(script))
		})

		t.Run("ConvergenceShuffled", func(t *testing.T) {
			testConvergence(t, factory, script, shuffled(script, 42))
		})

		t.Run("ConvergenceWithDuplicates", func(t *testing.T) {
			testConvergence(t, factory, script, withDuplicates(script))
		})

		t.Run("Idempotence", func(t *testing.T) {
			testIdempotence(t, factory, script)
		})

		t.Run("MergeRoundTrip", func(t *testing.T) {
			testMergeRoundTrip(t, factory, script)
		})

		t.Run("MergeCommutes", func(t *testing.T) {
			testMergeCommutes(t, factory, script)
		})

		t.Run("RejectsIncompatibleSnapshot", func(t *testing.T) {
			testIncompatibleSnapshot(t, factory, script)
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func apply(t testing.TB, s store.IReplicatedStore, script []Step) {
	t.Helper()
	for i, step := range script {
		if _, err := s.ApplyRemote(step.Op, step.Meta); err != nil {
			t.Fatalf("step %d (%s) failed: %v", i, step.Op.Kind(), err)
		}
	}
}

func export(t testing.TB, s store.IReplicatedStore) []byte {
	t.Helper()
	b, err := s.Export()
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	return b
}

func reversed(script []Step) []Step {
	out := make([]Step, len(script))
	for i, step := range script {
		out[len(script)-1-i] = step
	}
	return out
}

func shuffled(script []Step, seed uint64) []Step {
	out := make([]Step, len(script))
	copy(out, script)
	rnd := rand.New(rand.NewPCG(seed, seed))
	rnd.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// withDuplicates re-delivers every other step immediately and replays the
// first half of the script again at the end.
func withDuplicates(script []Step) []Step {
	var out []Step
	for i, step := range script {
		out = append(out, step)
		if i%2 == 0 {
			out = append(out, step)
		}
	}
	out = append(out, script[:len(script)/2]...)
	return out
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testConvergence(t *testing.T, factory StoreFactory, a, b []Step) {
	replicaA := factory()
	replicaB := factory()

	apply(t, replicaA, a)
	apply(t, replicaB, b)

	exportA := export(t, replicaA)
	exportB := export(t, replicaB)
	if !bytes.Equal(exportA, exportB) {
		t.Errorf("replicas diverged: %d vs %d export bytes", len(exportA), len(exportB))
	}
}

func testIdempotence(t *testing.T, factory StoreFactory, script []Step) {
	once := factory()
	twice := factory()

	apply(t, once, script)
	for _, step := range script {
		if _, err := twice.ApplyRemote(step.Op, step.Meta); err != nil {
			t.Fatalf("first apply failed: %v", err)
		}
		if _, err := twice.ApplyRemote(step.Op, step.Meta); err != nil {
			t.Fatalf("second apply failed: %v", err)
		}
	}

	if !bytes.Equal(export(t, once), export(t, twice)) {
		t.Error("re-applying operations changed store state")
	}
}

func testMergeRoundTrip(t *testing.T, factory StoreFactory, script []Step) {
	source := factory()
	apply(t, source, script)
	blob := export(t, source)

	joiner := factory()
	if err := joiner.Merge(blob); err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	if !bytes.Equal(blob, export(t, joiner)) {
		t.Error("snapshot did not round-trip through merge")
	}

	// merging the same snapshot again must be a no-op
	if err := joiner.Merge(blob); err != nil {
		t.Fatalf("second merge failed: %v", err)
	}
	if !bytes.Equal(blob, export(t, joiner)) {
		t.Error("re-merging the same snapshot changed store state")
	}
}

func testMergeCommutes(t *testing.T, factory StoreFactory, script []Step) {
	half := len(script) / 2

	first := factory()
	apply(t, first, script[:half])
	blobFirst := export(t, first)

	second := factory()
	apply(t, second, script[half:])
	blobSecond := export(t, second)

	ab := factory()
	if err := ab.Merge(blobFirst); err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if err := ab.Merge(blobSecond); err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	ba := factory()
	if err := ba.Merge(blobSecond); err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if err := ba.Merge(blobFirst); err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	if !bytes.Equal(export(t, ab), export(t, ba)) {
		t.Error("merge order changed store state")
	}
}

func testIncompatibleSnapshot(t *testing.T, factory StoreFactory, script []Step) {
	s := factory()
	apply(t, s, script)
	before := export(t, s)

	err := s.Merge([]byte("definitely not a snapshot"))
	if store.CodeOf(err) != store.RetCIncompatibleSnapshot {
		t.Errorf("expected RetCIncompatibleSnapshot, got %v", err)
	}

	if !bytes.Equal(before, export(t, s)) {
		t.Error("failed merge must leave the store unmodified")
	}
}
