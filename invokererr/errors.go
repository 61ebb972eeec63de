// Package invokererr defines the error kinds surfaced by the invoker core:
// the codec, the typed channel, the sandbox builder, and the worker
// orchestrator each raise one of these rather than a bare error string, so
// callers can branch on Kind without parsing messages.
package invokererr

import "fmt"

// Kind identifies which subsystem failed and why, per spec §7.
type Kind int

const (
	// Codec is a truncated buffer, unknown variant index, or missing
	// type key while encoding/decoding a value.
	Codec Kind = iota
	// Channel is a short write, closed peer, SCM_RIGHTS overflow, or
	// unterminated packet stream.
	Channel
	// Sandbox is a failed mount/unshare/pivot_root/uid-map step.
	Sandbox
	// ChildFailed means a spawned process exited nonzero or died to a
	// signal.
	ChildFailed
	// NoValue means a spawned process exited 0 without sending a value.
	NoValue
	// Configuration is a missing package, language, or prerequisite.
	Configuration
	// InvokerFailure is a logical protocol violation inside the core.
	InvokerFailure
	// ConductorFailure is a logical protocol violation by the caller
	// (the out-of-scope conductor/client collaborator).
	ConductorFailure
)

func (k Kind) String() string {
	switch k {
	case Codec:
		return "codec-error"
	case Channel:
		return "channel-error"
	case Sandbox:
		return "sandbox-setup"
	case ChildFailed:
		return "child-failed"
	case NoValue:
		return "no-value"
	case Configuration:
		return "configuration-failure"
	case InvokerFailure:
		return "invoker-failure"
	case ConductorFailure:
		return "conductor-failure"
	default:
		return "unknown-error"
	}
}

// Error is a concrete error type carrying a Kind, a human-readable
// message, and an optional wrapped cause.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around an existing cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

// Unwrap lets errors.Is/errors.As see through to the wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// Kind returns the error's Kind.
func (e *Error) Kind() Kind { return e.kind }

// Is reports whether target is an *Error with the same Kind, so callers
// can write errors.Is(err, invokererr.New(invokererr.Sandbox, "")).
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.kind == e.kind
}
