package objstore

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/ValentinKolb/dSync/lib/store"
)

// --------------------------------------------------------------------------
// Snapshot Encoding
// --------------------------------------------------------------------------

// Constants for the exported blob format
const (
	magicNum    = "DSYNCOBJ" // blob format identifier
	blobVersion = 1          // object store blob version
)

// objectRec is the exported form of one object record.
type objectRec struct {
	ID        string
	Type      string
	TypeTs    int64
	TypeBy    string
	Payload   []byte
	PayloadTs int64
	PayloadBy string
	X, Y      float64
	PosTs     int64
	PosBy     string
	Deleted   bool
	DeleteTs  int64
	DeleteBy  string
}

func newObjectRec(id string, rec record) objectRec {
	return objectRec{
		ID:        id,
		Type:      rec.Type,
		TypeTs:    rec.TypeStamp.Ts,
		TypeBy:    rec.TypeStamp.By,
		Payload:   rec.Payload,
		PayloadTs: rec.PayloadStamp.Ts,
		PayloadBy: rec.PayloadStamp.By,
		X:         rec.X,
		Y:         rec.Y,
		PosTs:     rec.PosStamp.Ts,
		PosBy:     rec.PosStamp.By,
		Deleted:   rec.Deleted,
		DeleteTs:  rec.DeleteStamp.Ts,
		DeleteBy:  rec.DeleteStamp.By,
	}
}

func (r objectRec) record() record {
	return record{
		Type:         r.Type,
		TypeStamp:    stamp{Ts: r.TypeTs, By: r.TypeBy},
		Payload:      r.Payload,
		PayloadStamp: stamp{Ts: r.PayloadTs, By: r.PayloadBy},
		X:            r.X,
		Y:            r.Y,
		PosStamp:     stamp{Ts: r.PosTs, By: r.PosBy},
		Deleted:      r.Deleted,
		DeleteStamp:  stamp{Ts: r.DeleteTs, By: r.DeleteBy},
	}
}

// encodeObjects serializes the records with a magic number and version
// header followed by a gob stream. Callers pass records sorted by id so the
// encoding is deterministic.
func encodeObjects(recs []objectRec) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(magicNum)
	buf.WriteByte(blobVersion)

	if err := gob.NewEncoder(&buf).Encode(recs); err != nil {
		return nil, store.NewError(store.RetCInternalError,
			fmt.Sprintf("failed to encode object snapshot: %v", err))
	}
	return buf.Bytes(), nil
}

// decodeObjects verifies the header and decodes the gob stream.
func decodeObjects(b []byte) ([]objectRec, error) {
	if len(b) < len(magicNum)+1 || string(b[:len(magicNum)]) != magicNum {
		return nil, store.NewError(store.RetCIncompatibleSnapshot,
			"invalid object snapshot: magic number mismatch")
	}
	if version := b[len(magicNum)]; version != blobVersion {
		return nil, store.NewError(store.RetCIncompatibleSnapshot,
			fmt.Sprintf("unsupported object snapshot version: %d (expected %d)", version, blobVersion))
	}

	var recs []objectRec
	if err := gob.NewDecoder(bytes.NewReader(b[len(magicNum)+1:])).Decode(&recs); err != nil {
		return nil, store.NewError(store.RetCIncompatibleSnapshot,
			fmt.Sprintf("corrupt object snapshot: %v", err))
	}
	return recs, nil
}
