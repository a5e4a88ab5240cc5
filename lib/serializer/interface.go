package serializer

import "github.com/ValentinKolb/dSync/lib/store"

// ISnapshotSerializer is the interface for all snapshot serializers
type ISnapshotSerializer interface {
	// Serialize serializes a Snapshot into a byte array
	// It returns the serialized byte array and an error if any
	Serialize(snap store.Snapshot) ([]byte, error)
	// Deserialize deserializes a byte array into a Snapshot
	// It takes a byte array and a pointer to a Snapshot as parameters
	// It returns an error if any
	Deserialize(b []byte, snap *store.Snapshot) error
}
