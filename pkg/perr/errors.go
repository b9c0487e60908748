// Package perr implements the error taxonomy from the core's error
// handling design: a small set of kinds, each mapped to an exit code,
// wrapping the underlying cause with github.com/pkg/errors.
package perr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error into one of the taxonomy's buckets. Kind
// determines retry behavior and the exit code surfaced by the CLI.
type Kind uint8

const (
	// KindInput covers malformed manifests/locks, unsatisfiable
	// constraints, and invalid package names. Never retried.
	KindInput Kind = iota + 1
	// KindNetwork covers DNS/TCP/TLS/5xx/timeout/429. Retried with
	// backoff by the caller before being wrapped at this kind.
	KindNetwork
	// KindAuth covers 401/403 responses.
	KindAuth
	// KindNotFound covers a 404 on a metadata request.
	KindNotFound
	// KindIntegrity covers checksum mismatch, archive corruption, and
	// path-traversal attempts.
	KindIntegrity
	// KindConflict covers solver unsatisfiability.
	KindConflict
	// KindPlatform covers an unmet platform pseudo-package requirement.
	KindPlatform
	// KindCapability covers a missing external tool (e.g. a 7z binary).
	KindCapability
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not-found"
	case KindIntegrity:
		return "integrity"
	case KindConflict:
		return "conflict"
	case KindPlatform:
		return "platform"
	case KindCapability:
		return "capability-missing"
	default:
		return "unknown"
	}
}

// Error is a taxonomy-tagged error. It wraps an underlying cause and
// carries enough context (file/field path, host, package name) for the
// CLI to render a useful message without the core needing to format text.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// Field is an optional dotted path into a manifest/lock file, set for
	// KindInput errors.
	Field string
	// Host is an optional hostname, set for KindNetwork/KindAuth errors.
	Host string
	// Package is an optional "vendor/name", set for KindNotFound/
	// KindIntegrity/KindPlatform/KindConflict errors.
	Package string
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s (field %s)", msg, e.Field)
	}
	if e.Host != "" {
		msg = fmt.Sprintf("%s (host %s)", msg, e.Host)
	}
	if e.Package != "" {
		msg = fmt.Sprintf("%s (package %s)", msg, e.Package)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Wrap annotates cause with a kind and message, following the same
// construction style as golang-dep's errors.go severity levels.
func Wrap(kind Kind, cause error, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: errors.WithStack(cause)}
}

// New creates a kind-tagged error with no underlying cause.
func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithField attaches a manifest/lock field path to err if err is (or
// wraps) a *Error.
func WithField(err error, field string) error {
	if e, ok := asError(err); ok {
		e.Field = field
	}
	return err
}

// WithHost attaches a hostname to err if err is (or wraps) a *Error.
func WithHost(err error, host string) error {
	if e, ok := asError(err); ok {
		e.Host = host
	}
	return err
}

// WithPackage attaches a package id to err if err is (or wraps) a *Error.
func WithPackage(err error, pkg string) error {
	if e, ok := asError(err); ok {
		e.Package = pkg
	}
	return err
}

func asError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the taxonomy kind of err, or 0 if err is not (and does
// not wrap) a *Error.
func KindOf(err error) Kind {
	if e, ok := asError(err); ok {
		return e.Kind
	}
	return 0
}

// ExitCode maps an error to the process exit code table from the
// external CLI contract: 0 success, 1 generic failure, 2 validation
// failure, 3 unresolved conflict, 4 checksum/extract failure, 5 platform
// requirement unmet.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindInput:
		return 2
	case KindConflict:
		return 3
	case KindIntegrity:
		return 4
	case KindPlatform:
		return 5
	default:
		return 1
	}
}
