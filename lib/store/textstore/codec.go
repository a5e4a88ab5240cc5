package textstore

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sort"

	"github.com/ValentinKolb/dSync/lib/store"
)

// --------------------------------------------------------------------------
// Snapshot Encoding
// --------------------------------------------------------------------------

// Constants for the exported blob format
const (
	magicNum    = "DSYNCTXT" // blob format identifier
	blobVersion = 1          // text store blob version
)

// styleRec is the exported form of one style mark. Styles are exported as a
// slice sorted by key so converged replicas produce byte-identical blobs.
type styleRec struct {
	Key   string
	Value string
	Ts    int64
	User  string
}

// atomRec is the exported form of one atom.
type atomRec struct {
	ID      store.PosID
	Value   string
	Deleted bool
	Styles  []styleRec
}

func sortedStyles(marks map[string]styleMark) []styleRec {
	if len(marks) == 0 {
		return nil
	}
	recs := make([]styleRec, 0, len(marks))
	for key, mark := range marks {
		recs = append(recs, styleRec{Key: key, Value: mark.Value, Ts: mark.Ts, User: mark.User})
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Key < recs[j].Key })
	return recs
}

// encodeAtoms serializes the atom records with a magic number and version
// header followed by a gob stream.
func encodeAtoms(recs []atomRec) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(magicNum)
	buf.WriteByte(blobVersion)

	if err := gob.NewEncoder(&buf).Encode(recs); err != nil {
		return nil, store.NewError(store.RetCInternalError,
			fmt.Sprintf("failed to encode text snapshot: %v", err))
	}
	return buf.Bytes(), nil
}

// decodeAtoms verifies the header and decodes the gob stream. A mismatched
// magic number or version yields RetCIncompatibleSnapshot.
func decodeAtoms(b []byte) ([]atomRec, error) {
	if len(b) < len(magicNum)+1 || string(b[:len(magicNum)]) != magicNum {
		return nil, store.NewError(store.RetCIncompatibleSnapshot,
			"invalid text snapshot: magic number mismatch")
	}
	if version := b[len(magicNum)]; version != blobVersion {
		return nil, store.NewError(store.RetCIncompatibleSnapshot,
			fmt.Sprintf("unsupported text snapshot version: %d (expected %d)", version, blobVersion))
	}

	var recs []atomRec
	if err := gob.NewDecoder(bytes.NewReader(b[len(magicNum)+1:])).Decode(&recs); err != nil {
		return nil, store.NewError(store.RetCIncompatibleSnapshot,
			fmt.Sprintf("corrupt text snapshot: %v", err))
	}
	return recs, nil
}
