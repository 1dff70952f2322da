// Package psyncerr defines the small closed set of typed errors that flow
// through a sync session. Each carries a Kind so that callers (the session
// state machine, the CLI's exit-code mapping) can classify a failure
// without string matching.
package psyncerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind uint8

// Error kinds, matching the session's typed error set.
const (
	// ConfigError indicates a problem with the session's configuration
	// (e.g. conflicting or missing CLI options) discovered before any
	// network activity begins.
	ConfigError Kind = iota
	// IoError indicates a local filesystem failure: an unreadable or
	// vanished source file, or a failure staging/renaming a destination
	// file.
	IoError
	// ProtocolError indicates a malformed frame: a bad tag, a length that
	// overflows the frame codec's limit, or a payload that fails to decode.
	ProtocolError
	// VersionMismatch indicates that the peers' HELLO handshakes are
	// incompatible.
	VersionMismatch
	// HashMismatch indicates that a reconstructed file's whole-file strong
	// hash didn't match the hash carried in FILE_END.
	HashMismatch
	// Timeout indicates that no frame activity was observed in either
	// direction within the session's idle timeout.
	Timeout
	// Cancelled indicates that the session was torn down by the caller
	// (context cancellation or an environment signal) rather than by a
	// peer or local failure.
	Cancelled
)

// String returns a human-readable name for a Kind.
func (k Kind) String() string {
	switch k {
	case ConfigError:
		return "ConfigError"
	case IoError:
		return "IoError"
	case ProtocolError:
		return "ProtocolError"
	case VersionMismatch:
		return "VersionMismatch"
	case HashMismatch:
		return "HashMismatch"
	case Timeout:
		return "Timeout"
	case Cancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Error is a typed, optionally-wrapped session error.
type Error struct {
	// Kind classifies the error.
	Kind Kind
	// Message is a human-readable description.
	Message string
	// Underlying is the error that caused this one, if any.
	Underlying error
}

// New creates an Error of the given kind with a formatted message.
func New(kind Kind, format string, v ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, v...)}
}

// Wrap creates an Error of the given kind that wraps an existing error.
func Wrap(kind Kind, underlying error, format string, v ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, v...), Underlying: underlying}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through to the underlying error.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// Is reports whether err is (or wraps) a psyncerr.Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
