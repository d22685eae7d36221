// Package lberrors defines the error taxonomy shared by the room connection
// machine and the root client package (spec.md §7): five kinds distinguished
// by how they are surfaced — synchronously at construction/call time, via a
// room's error subscribers, or silently retried/logged. It lives below
// `room` and the root package so both can produce and compare the same
// concrete error type without an import cycle; the root package re-exports
// Kind and Error as liveblocks.ErrorKind/liveblocks.Error.
package lberrors

import "fmt"

// Kind classifies an Error by how it must be surfaced, per spec.md §7.
type Kind int

const (
	// Configuration errors: invalid options, throttle out of range,
	// mutually exclusive options. Surfaced synchronously at construction.
	Configuration Kind = iota
	// AuthPermanent errors: malformed token, forbidden (HTTP 403 semantics).
	// Reported to room error subscribers; the connection moves to Failed.
	AuthPermanent
	// AuthTransientOrNetwork errors: transient auth failures, socket errors,
	// network errors. Retried with backoff; never surfaced except as a
	// status transition to Unavailable.
	AuthTransientOrNetwork
	// ProtocolViolation errors: malformed server frame, unknown op target,
	// duplicate attach. Logged and the frame dropped; repeated violations
	// within a window force reconnection.
	ProtocolViolation
	// UserMisuse errors: mutating a detached node, popping undo while
	// paused. Thrown synchronously; state unchanged.
	UserMisuse
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration"
	case AuthPermanent:
		return "auth_permanent"
	case AuthTransientOrNetwork:
		return "auth_transient_or_network"
	case ProtocolViolation:
		return "protocol_violation"
	case UserMisuse:
		return "user_misuse"
	default:
		return "unknown"
	}
}

// Error is the single error type carrying a Kind, an optional room id, and
// a wrapped cause.
type Error struct {
	Kind   Kind
	RoomID string
	Msg    string
	Cause  error
}

func (e *Error) Error() string {
	if e.RoomID != "" {
		if e.Cause != nil {
			return fmt.Sprintf("liveblocks: [%s] room %q: %s: %v", e.Kind, e.RoomID, e.Msg, e.Cause)
		}
		return fmt.Sprintf("liveblocks: [%s] room %q: %s", e.Kind, e.RoomID, e.Msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("liveblocks: [%s] %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("liveblocks: [%s] %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no room id, for construction-time failures
// (Configuration kind, mostly).
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an Error carrying cause, for a specific room.
func Wrap(kind Kind, roomID, msg string, cause error) *Error {
	return &Error{Kind: kind, RoomID: roomID, Msg: msg, Cause: cause}
}
