// Package liveblocks is a realtime collaboration client: it joins named
// rooms, keeps a CRDT document tree and per-actor presence synchronized
// with a relay server over WebSocket, and exposes undo/redo and broadcast
// on top, per spec.md's overview.
package liveblocks

import "github.com/M-Faheem-Khan/liveblocks/internal/lberrors"

// ErrorKind classifies an Error by how the library surfaces it, per
// spec.md §7.
type ErrorKind = lberrors.Kind

// The five error kinds spec.md §7 distinguishes.
const (
	Configuration          = lberrors.Configuration
	AuthPermanent          = lberrors.AuthPermanent
	AuthTransientOrNetwork = lberrors.AuthTransientOrNetwork
	ProtocolViolation      = lberrors.ProtocolViolation
	UserMisuse             = lberrors.UserMisuse
)

// Error is the error type the client and room layers return or report to a
// room's error subscribers. CRDT node mutators report misuse with their own
// error types instead (see ErrDetached). Use errors.As to recover Kind from
// a wrapped error.
type Error = lberrors.Error
