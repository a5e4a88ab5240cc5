package store

import "fmt"

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// StoreFactory is a function type that creates a new replicated store.
// It is used to abstract store construction from the engine, e.g. when an
// atomic snapshot import stages fresh store instances before swapping them in.
type StoreFactory func() IReplicatedStore

// IReplicatedStore is the generic interface for a conflict-free replicated
// store. Three implementations exist, one per document region (text, object,
// table); the engine routes operations by their category.
//
// Required law: for any two updates applied in either order, or duplicated,
// the resulting store state is identical.
type IReplicatedStore interface {
	// Category returns the operation category this store owns.
	Category() Category

	// ApplyLocal validates and applies a locally originated operation and
	// returns its replicable form. For text operations the returned operation
	// carries stable position identifiers instead of the raw offsets the
	// caller provided; object and table operations are returned unchanged.
	// On error the store is guaranteed to be unmodified.
	ApplyLocal(op Operation, meta OpMeta) (Operation, error)

	// ApplyRemote applies an operation received from a peer. The operation
	// must be in replicable form (i.e. produced by some replica's ApplyLocal).
	// Re-applying the same operation is a no-op. A non-nil ConflictEvent is
	// returned when the resolution was not silently deterministic, e.g. a
	// stale write was suppressed; it is advisory and never an error.
	ApplyRemote(op Operation, meta OpMeta) (*ConflictEvent, error)

	// Merge folds an exported snapshot of another replica into this store.
	// Merging is a CRDT join: commutative, associative and idempotent.
	// Fails with RetCIncompatibleSnapshot if the blob does not match the
	// store's format; the store is unmodified in that case.
	Merge(snapshot []byte) error

	// Export serializes the full store state into an opaque blob suitable
	// for Merge on another replica. The encoding is deterministic: two
	// converged replicas export byte-identical blobs.
	Export() ([]byte, error)
}

// OpMeta carries the replication metadata a store needs to order writes.
// It is derived from the update envelope and treated as immutable.
type OpMeta struct {
	// UpdateID is the globally unique id of the carrying update.
	UpdateID string
	// UserID is the author of the operation.
	UserID string
	// Timestamp is the wall-clock time of the write in unix microseconds.
	// Last-write-wins resolution orders by (Timestamp, UserID).
	Timestamp int64
}

// --------------------------------------------------------------------------
// Operation Categories
// --------------------------------------------------------------------------

// Category identifies which store owns an operation.
type Category uint8

const (
	CategoryText Category = iota
	CategoryObject
	CategoryTable
)

func (c Category) String() string {
	switch c {
	case CategoryText:
		return "text"
	case CategoryObject:
		return "object"
	case CategoryTable:
		return "table"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("ReplicationError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// CodeOf extracts the return code from an error. Errors that are not of
// type *Error map to RetCInternalError; nil maps to RetCSuccess.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return RetCInternalError
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Operation executed successfully.
	RetCInternalError                       // 1: Operation failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by the target store.
	RetCInvalidOperation                    // 3: Operation is structurally invalid.
	RetCSessionNotFound                     // 4: Operation references a session not in the session table.
	RetCIncompatibleSnapshot                // 5: Snapshot payload does not match the expected store structure.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCSessionNotFound:
		return "SessionNotFound"
	case RetCIncompatibleSnapshot:
		return "IncompatibleSnapshot"
	default:
		return "Unknown"
	}
}
