package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dSync/lib/store"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() ISnapshotSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements ISnapshotSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasText       byte = 1 << 0
	hasObjects    byte = 1 << 1
	hasTables     byte = 1 << 2
	hasExportedAt byte = 1 << 3
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.ISnapshotSerializer)
// --------------------------------------------------------------------------

func (s binarySerializerImpl) Serialize(snap store.Snapshot) ([]byte, error) {
	// Calculate total size needed
	totalSize := s.sizeBytes(snap)
	result := make([]byte, totalSize)

	// Initialize flags byte
	var flags byte = 0

	// Set position for writing
	pos := 1 // Start after flags

	// Handle the three store blobs
	for _, field := range []struct {
		flag byte
		blob []byte
	}{
		{hasText, snap.TextStore},
		{hasObjects, snap.ObjectStore},
		{hasTables, snap.TableStore},
	} {
		if field.blob == nil {
			continue
		}
		flags |= field.flag

		// Write blob length
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(field.blob)))
		pos += 4

		// Write blob data
		copy(result[pos:pos+len(field.blob)], field.blob)
		pos += len(field.blob)
	}

	// Handle ExportedAt
	if snap.ExportedAt != 0 {
		flags |= hasExportedAt
		binary.BigEndian.PutUint64(result[pos:pos+8], uint64(snap.ExportedAt))
		pos += 8
	}

	// Set flags byte after knowing which fields are present
	result[0] = flags

	return result, nil
}

func (s binarySerializerImpl) Deserialize(data []byte, snap *store.Snapshot) error {
	// Check minimum size (flags)
	if len(data) < 1 {
		return fmt.Errorf("data too short for snapshot header")
	}

	// Read flags
	flags := data[0]

	// Initialize read position
	pos := 1

	// Read the three store blobs if present
	for _, field := range []struct {
		flag byte
		dst  *[]byte
	}{
		{hasText, &snap.TextStore},
		{hasObjects, &snap.ObjectStore},
		{hasTables, &snap.TableStore},
	} {
		if flags&field.flag == 0 {
			*field.dst = nil
			continue
		}

		if pos+4 > len(data) {
			return fmt.Errorf("data too short for blob length")
		}

		// Read blob length
		blobLen := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4

		if pos+blobLen > len(data) {
			return fmt.Errorf("data too short for blob data")
		}

		// Read blob data - allocate only if needed
		if *field.dst == nil || cap(*field.dst) < blobLen {
			*field.dst = make([]byte, blobLen)
		} else {
			*field.dst = (*field.dst)[:blobLen]
		}
		copy(*field.dst, data[pos:pos+blobLen])
		pos += blobLen
	}

	// Read ExportedAt if present
	if flags&hasExportedAt != 0 {
		if pos+8 > len(data) {
			return fmt.Errorf("data too short for ExportedAt")
		}
		snap.ExportedAt = int64(binary.BigEndian.Uint64(data[pos : pos+8]))
		pos += 8
	} else {
		snap.ExportedAt = 0
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (s binarySerializerImpl) sizeBytes(snap store.Snapshot) int {
	// 1 byte for flags
	size := 1

	// Add sizes for blobs that require length encoding
	if snap.TextStore != nil {
		size += 4 + len(snap.TextStore)
	}
	if snap.ObjectStore != nil {
		size += 4 + len(snap.ObjectStore)
	}
	if snap.TableStore != nil {
		size += 4 + len(snap.TableStore)
	}
	if snap.ExportedAt != 0 {
		size += 8 // int64
	}

	return size
}
