package tablestore

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
	magicNum    = "DSYNCTBL" // blob format identifier
	blobVersion = 1          // table store blob version
)

// cellRec is the exported form of one cell.
type cellRec struct {
	Key     CellKey
	Value   []byte
	Ts      int64
	By      string
	Deleted bool
}

// rowRec is the exported form of one row tombstone.
type rowRec struct {
	Key RowKey
	Ts  int64
	By  string
}

// tableSnap is the full exported state.
type tableSnap struct {
	Cells []cellRec
	Rows  []rowRec
}

// encodeTable serializes the snapshot with a magic number and version header
// followed by a gob stream. Callers pass sorted slices so the encoding is
// deterministic.
func encodeTable(snap tableSnap) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(magicNum)
	buf.WriteByte(blobVersion)

	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, store.NewError(store.RetCInternalError,
			fmt.Sprintf("failed to encode table snapshot: %v", err))
	}
	return buf.Bytes(), nil
}

// decodeTable verifies the header and decodes the gob stream.
func decodeTable(b []byte) (tableSnap, error) {
	if len(b) < len(magicNum)+1 || string(b[:len(magicNum)]) != magicNum {
		return tableSnap{}, store.NewError(store.RetCIncompatibleSnapshot,
			"invalid table snapshot: magic number mismatch")
	}
	if version := b[len(magicNum)]; version != blobVersion {
		return tableSnap{}, store.NewError(store.RetCIncompatibleSnapshot,
			fmt.Sprintf("unsupported table snapshot version: %d (expected %d)", version, blobVersion))
	}

	var snap tableSnap
	if err := gob.NewDecoder(bytes.NewReader(b[len(magicNum)+1:])).Decode(&snap); err != nil {
		return tableSnap{}, store.NewError(store.RetCIncompatibleSnapshot,
			fmt.Sprintf("corrupt table snapshot: %v", err))
	}
	return snap, nil
}
