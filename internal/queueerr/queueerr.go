// Package queueerr defines the error taxonomy surfaced by the queue.
//
// Every error the queue returns is a *Error carrying one of the Kind
// values below, so callers can dispatch on cause with errors.As instead of
// string matching. Attr lets call sites attach structured fields that flow
// through to logging without building a second parallel type per error
// site.
package queueerr

import (
	"errors"
	"fmt"
	"log/slog"
)

// Kind classifies the cause of an Error.
type Kind int

const (
	// KindIo wraps an underlying filesystem or mmap failure.
	KindIo Kind = iota
	// KindCorruptedMessage means a length/CRC check failed while reading.
	KindCorruptedMessage
	// KindManifestCorrupted means magic, length, or CRC validation failed
	// while deserializing a manifest.
	KindManifestCorrupted
	// KindUnsupportedManifestVersion means the manifest's version field is
	// not the one this build understands.
	KindUnsupportedManifestVersion
	// KindInvalidPath means a path could not be decomposed into the
	// expected data/index file naming scheme.
	KindInvalidPath
	// KindQueueShutdown means an appender was used after the queue was shut
	// down.
	KindQueueShutdown
	// KindInternal means a programmer-visible invariant was violated.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindIo:
		return "io"
	case KindCorruptedMessage:
		return "corrupted_message"
	case KindManifestCorrupted:
		return "manifest_corrupted"
	case KindUnsupportedManifestVersion:
		return "unsupported_manifest_version"
	case KindInvalidPath:
		return "invalid_path"
	case KindQueueShutdown:
		return "queue_shutdown"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the queue's standard error type.
//
// Not safe for concurrent mutation; build one with the New* constructors and
// chain Attr calls in a single statement.
type Error struct {
	Kind Kind
	msg  string
	err  error

	// Sequence is set for KindCorruptedMessage.
	Sequence uint64
	// Version is set for KindUnsupportedManifestVersion.
	Version uint32
	// Path is set for KindInvalidPath.
	Path string

	attrs map[string]slog.Value
}

// ErrQueueShutdown is returned by an Appender used after the queue's
// shutdown has completed. It carries no per-call data, so it is a single
// shared *Error sentinel rather than one built by a constructor.
var ErrQueueShutdown = &Error{Kind: KindQueueShutdown, msg: "queue: appender used after shutdown"}

// IoError wraps an underlying filesystem or mmap failure.
func IoError(cause error) *Error {
	return &Error{Kind: KindIo, msg: "queue: io failure", err: cause}
}

// CorruptedMessageError reports a length/CRC mismatch at the given
// sequence.
func CorruptedMessageError(sequence uint64) *Error {
	return &Error{
		Kind:     KindCorruptedMessage,
		msg:      fmt.Sprintf("queue: corrupted message at sequence %d", sequence),
		Sequence: sequence,
	}
}

// ManifestCorruptedError reports a manifest that failed validation, with a
// human-readable reason (e.g. "bad magic", "checksum mismatch").
func ManifestCorruptedError(reason string) *Error {
	return &Error{Kind: KindManifestCorrupted, msg: "queue: manifest corrupted: " + reason}
}

// UnsupportedManifestVersionError reports a manifest whose version this
// build does not understand.
func UnsupportedManifestVersionError(version uint32) *Error {
	return &Error{
		Kind:    KindUnsupportedManifestVersion,
		msg:     fmt.Sprintf("queue: unsupported manifest version %d", version),
		Version: version,
	}
}

// InvalidPathError reports a path that cannot be decomposed into the
// data/index naming scheme.
func InvalidPathError(path string) *Error {
	return &Error{Kind: KindInvalidPath, msg: "queue: invalid path: " + path, Path: path}
}

// InternalError reports a programmer-visible invariant violation.
func InternalError(message string) *Error {
	return &Error{Kind: KindInternal, msg: "queue: internal error: " + message}
}

// Attr associates structured data with the error, for inclusion when the
// error is logged. Returns the error for chaining.
func (e *Error) Attr(attr slog.Attr) *Error {
	if e.attrs == nil {
		e.attrs = make(map[string]slog.Value)
	}
	e.attrs[attr.Key] = attr.Value
	return e
}

// Attrs returns the structured fields attached to err, or nil if err is not
// an *Error or carries none.
func Attrs(err error) []slog.Attr {
	var qerr *Error
	if !errors.As(err, &qerr) || len(qerr.attrs) == 0 {
		return nil
	}
	out := make([]slog.Attr, 0, len(qerr.attrs))
	for k, v := range qerr.attrs {
		out = append(out, slog.Attr{Key: k, Value: v})
	}
	return out
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %v", e.msg, e.err)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.err
}
