package serializer

import (
	"reflect"
	"testing"

	"github.com/ValentinKolb/dSync/lib/store"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() ISnapshotSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testSnapshots creates a set of test snapshots with different fields filled
func testSnapshots() []store.Snapshot {
	return []store.Snapshot{
		// Empty snapshot
		{},

		// Text only
		{
			TextStore:  []byte("DSYNCTXT\x01text-blob"),
			ExportedAt: 1724400000000000,
		},

		// All three stores
		{
			TextStore:   []byte("DSYNCTXT\x01text-blob"),
			ObjectStore: []byte("DSYNCOBJ\x01object-blob"),
			TableStore:  []byte("DSYNCTBL\x01table-blob"),
			ExportedAt:  1724400000000000,
		},

		// Large blob
		{
			ObjectStore: make([]byte, 16*1024),
		},
	}
}

// TestSerializerRoundTrip tests that snapshots can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	snapshots := testSnapshots()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			s := factory()

			for i, snap := range snapshots {
				// Serialize
				data, err := s.Serialize(snap)
				if err != nil {
					t.Errorf("Failed to serialize snapshot %d: %v", i, err)
					continue
				}

				// Deserialize
				var result store.Snapshot
				err = s.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize snapshot %d: %v", i, err)
					continue
				}

				// Compare
				if !reflect.DeepEqual(snap, result) {
					t.Errorf("Snapshot %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, snap, result)
				}
			}
		})
	}
}

// TestDeserializeIntoReusedSnapshot tests that deserialization resets stale fields
func TestDeserializeIntoReusedSnapshot(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			s := factory()

			full := store.Snapshot{
				TextStore:   []byte("text"),
				ObjectStore: []byte("objects"),
				TableStore:  []byte("tables"),
				ExportedAt:  42,
			}
			data, err := s.Serialize(full)
			if err != nil {
				t.Fatalf("serialize failed: %v", err)
			}

			// reuse a snapshot that previously held different data
			result := store.Snapshot{TextStore: []byte("stale-but-longer-than-text")}
			if err := s.Deserialize(data, &result); err != nil {
				t.Fatalf("deserialize failed: %v", err)
			}
			if !reflect.DeepEqual(full, result) {
				t.Errorf("reused snapshot doesn't match:\nOriginal: %+v\nResult: %+v", full, result)
			}
		})
	}
}

// TestBinaryRejectsTruncatedData tests that the binary format detects short input
func TestBinaryRejectsTruncatedData(t *testing.T) {
	s := NewBinarySerializer()

	data, err := s.Serialize(store.Snapshot{TextStore: []byte("some text blob")})
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}

	for cut := 1; cut < len(data); cut++ {
		var snap store.Snapshot
		if err := s.Deserialize(data[:cut], &snap); err == nil {
			t.Errorf("truncation at %d bytes must fail", cut)
		}
	}

	var snap store.Snapshot
	if err := s.Deserialize(nil, &snap); err == nil {
		t.Error("empty input must fail")
	}
}
