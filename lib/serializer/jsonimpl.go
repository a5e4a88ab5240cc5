package serializer

import (
	"encoding/json"

	"github.com/ValentinKolb/dSync/lib/store"
)

// NewJSONSerializer creates a new serializer using json encoding
func NewJSONSerializer() ISnapshotSerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the ISnapshotSerializer interface using json encoding
type jsonSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.ISnapshotSerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Serialize(snap store.Snapshot) ([]byte, error) {
	return json.Marshal(snap)
}

func (j jsonSerializerImpl) Deserialize(b []byte, snap *store.Snapshot) error {
	return json.Unmarshal(b, snap)
}
