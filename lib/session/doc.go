// Package session manages the ephemeral per-peer state of a collaboration:
// session identity and permissions, cursor positions, and user presence.
// None of this state is part of the replicated document; it lives only as
// long as the peers that report it.
//
// Key Components:
//
//   - Manager: the session table. Sessions move through the states
//     Connecting, Active and Ended; ending a session removes it from the
//     table. Each session carries immutable permissions and a display color
//     derived deterministically from the user id, so the same user gets the
//     same color on every replica without coordination.
//
//   - CursorTable: the latest cursor position, selection and tool per
//     session. Overwritten on every report, removed on session end.
//
//   - Tracker: per-user presence (online, away, offline) with a last-seen
//     timestamp. Entries older than the configured timeout read as offline
//     without an explicit transition; the check happens lazily on read, no
//     background sweep is needed.
//
// Thread Safety:
//
//	All types in this package are safe for concurrent use.
package session
