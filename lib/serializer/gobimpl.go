package serializer

import (
	"bytes"
	"encoding/gob"

	"github.com/ValentinKolb/dSync/lib/store"
)

// NewGOBSerializer creates a new serializer using Go's binary gob format
func NewGOBSerializer() ISnapshotSerializer {
	return &gobSerializerImpl{}
}

// gobSerializerImpl implements the ISnapshotSerializer interface using gob encoding
type gobSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.ISnapshotSerializer)
// --------------------------------------------------------------------------

func (g gobSerializerImpl) Serialize(snap store.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g gobSerializerImpl) Deserialize(b []byte, snap *store.Snapshot) error {
	buf := bytes.NewBuffer(b)
	dec := gob.NewDecoder(buf)
	return dec.Decode(snap)
}
