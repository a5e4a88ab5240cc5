package store

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dSync/lib/clock"
)

// --------------------------------------------------------------------------
// Update Envelope
// --------------------------------------------------------------------------

// Update is the unit of replication: one operation stamped with its origin
// session, author, wall-clock timestamp and vector clock. Updates are
// immutable values; re-delivery of the same UpdateID must be a no-op on
// every replica.
type Update struct {
	UpdateID  string
	SessionID string
	UserID    string
	// Timestamp is the wall-clock time of the local apply in unix microseconds.
	Timestamp int64
	Operation Operation
	Clock     clock.VectorClock
}

// Meta derives the store-facing metadata from the envelope.
func (u *Update) Meta() OpMeta {
	return OpMeta{
		UpdateID:  u.UpdateID,
		UserID:    u.UserID,
		Timestamp: u.Timestamp,
	}
}

// updateJSON is the wire form of Update. The operation is embedded in its
// tagged form so the envelope stays self-describing.
type updateJSON struct {
	UpdateID  string            `json:"update_id"`
	SessionID string            `json:"session_id"`
	UserID    string            `json:"user_id"`
	Timestamp int64             `json:"timestamp"`
	Operation json.RawMessage   `json:"operation"`
	Clock     clock.VectorClock `json:"vector_clock"`
}

// MarshalJSON implements json.Marshaler.
func (u Update) MarshalJSON() ([]byte, error) {
	opBytes, err := EncodeOperation(u.Operation)
	if err != nil {
		return nil, err
	}
	return json.Marshal(updateJSON{
		UpdateID:  u.UpdateID,
		SessionID: u.SessionID,
		UserID:    u.UserID,
		Timestamp: u.Timestamp,
		Operation: opBytes,
		Clock:     u.Clock,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *Update) UnmarshalJSON(b []byte) error {
	var wire updateJSON
	if err := json.Unmarshal(b, &wire); err != nil {
		return NewError(RetCInvalidOperation, fmt.Sprintf("malformed update envelope: %v", err))
	}
	op, err := DecodeOperation(wire.Operation)
	if err != nil {
		return err
	}
	u.UpdateID = wire.UpdateID
	u.SessionID = wire.SessionID
	u.UserID = wire.UserID
	u.Timestamp = wire.Timestamp
	u.Operation = op
	u.Clock = wire.Clock
	return nil
}

// --------------------------------------------------------------------------
// Conflict Resolution Types
// --------------------------------------------------------------------------

// Strategy selects how concurrent writes to the same key are reconciled.
type Strategy uint8

const (
	// StrategyLastWriteWins keeps the write with the greater
	// (timestamp, user id) stamp. The deterministic default for object and
	// table operations.
	StrategyLastWriteWins Strategy = iota
	// StrategyFirstWriteWins keeps the write with the smaller stamp.
	StrategyFirstWriteWins
	// StrategyStructuralMerge reconciles positionally without suppressing
	// either write. The default for text operations.
	StrategyStructuralMerge
	// StrategyUserChoice resolves like last-write-wins but always surfaces a
	// conflict event so an outer layer can offer the losing write back to
	// the user.
	StrategyUserChoice
)

func (s Strategy) String() string {
	switch s {
	case StrategyLastWriteWins:
		return "LastWriteWins"
	case StrategyFirstWriteWins:
		return "FirstWriteWins"
	case StrategyStructuralMerge:
		return "StructuralMerge"
	case StrategyUserChoice:
		return "UserChoice"
	default:
		return "Unknown"
	}
}

// ConflictEvent is an advisory audit record emitted when a resolution was
// not silently deterministic, e.g. a concurrent write was suppressed by
// last-write-wins or delete-wins. It is informational only; the store has
// already converged when the event is emitted.
type ConflictEvent struct {
	Category Category `json:"category"`
	// Key identifies the contested entity: an object id, a cell address or
	// an atom position path.
	Key string `json:"key"`
	// Winner and Loser are the user ids of the prevailing and the
	// suppressed write.
	Winner    string   `json:"winner"`
	Loser     string   `json:"loser"`
	Strategy  Strategy `json:"strategy"`
	Timestamp int64    `json:"timestamp"`
	// Suppressed is the operation whose effect was not applied (or only
	// partially applied). Not serialized with the event body.
	Suppressed Operation `json:"-"`
}

// --------------------------------------------------------------------------
// Snapshot Envelope
// --------------------------------------------------------------------------

// Snapshot bundles one opaque exported blob per store plus the export
// timestamp. Snapshots serve late-joining peers and persistence handoff and
// round-trip through export/import without loss.
type Snapshot struct {
	TextStore   []byte `json:"text_store"`
	ObjectStore []byte `json:"object_store"`
	TableStore  []byte `json:"table_store"`
	// ExportedAt is the wall-clock export time in unix microseconds.
	ExportedAt int64 `json:"exported_at"`
}
