// Package serializer provides snapshot serialization for the collaboration
// engine. It defines a common interface and multiple implementations for
// turning a full document snapshot into a transportable byte blob and back,
// used by state export/import and by late-joiner catch-up.
//
// Key Components:
//
//   - ISnapshotSerializer: Core interface that all serializer implementations
//     must satisfy.
//
//   - binarySerializerImpl: Custom binary format implementation optimized for
//     speed and space efficiency. Uses a flag-based approach to encode only
//     present store blobs, resulting in compact serialized data with minimal
//     overhead.
//
//   - gobSerializerImpl: Implementation using Go's built-in gob encoding,
//     offering good compatibility with Go's type system but with larger
//     serialized sizes.
//
//   - jsonSerializerImpl: Implementation using JSON encoding, useful for
//     debugging or interoperability with other systems, but with lower
//     performance.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	Serializers are typically created once and reused throughout the
//	application:
//
//	  s := serializer.NewBinarySerializer()
//	  data, err := s.Serialize(snapshot)
//	  // ... persist or transfer data ...
//	  var restored store.Snapshot
//	  err = s.Deserialize(data, &restored)
package serializer
