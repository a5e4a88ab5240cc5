package serializer

import (
	"testing"

	"github.com/ValentinKolb/dSync/lib/store"
)

// benchmarkSnapshots returns a set of snapshots for targeted benchmarking
func benchmarkSnapshots() map[string]store.Snapshot {
	return map[string]store.Snapshot{
		"Empty": {},
		"TextOnly": {
			TextStore:  make([]byte, 512),
			ExportedAt: 1724400000000000,
		},
		"AllStoresSmall": {
			TextStore:   make([]byte, 512),
			ObjectStore: make([]byte, 256),
			TableStore:  make([]byte, 256),
			ExportedAt:  1724400000000000,
		},
		"AllStoresLarge": {
			TextStore:   make([]byte, 64*1024),
			ObjectStore: make([]byte, 16*1024),
			TableStore:  make([]byte, 16*1024),
			ExportedAt:  1724400000000000,
		},
	}
}

// BenchmarkSerialize measures serialization throughput per implementation
func BenchmarkSerialize(b *testing.B) {
	for implName, factory := range testSerializers {
		s := factory()
		for snapName, snap := range benchmarkSnapshots() {
			b.Run(implName+"/"+snapName, func(b *testing.B) {
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					if _, err := s.Serialize(snap); err != nil {
						b.Fatalf("serialize failed: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkDeserialize measures deserialization throughput per implementation
func BenchmarkDeserialize(b *testing.B) {
	for implName, factory := range testSerializers {
		s := factory()
		for snapName, snap := range benchmarkSnapshots() {
			data, err := s.Serialize(snap)
			if err != nil {
				b.Fatalf("serialize failed: %v", err)
			}
			b.Run(implName+"/"+snapName, func(b *testing.B) {
				b.ReportAllocs()
				var out store.Snapshot
				for i := 0; i < b.N; i++ {
					if err := s.Deserialize(data, &out); err != nil {
						b.Fatalf("deserialize failed: %v", err)
					}
				}
			})
		}
	}
}
