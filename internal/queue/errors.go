package queue

import (
	"errors"
	"fmt"
)

// Kind classifies adapter failures.
type Kind int

const (
	// KindToolUnavailable covers spawn failures and non-zero exits.
	KindToolUnavailable Kind = iota + 1
	// KindParseFailure means the tool succeeded but its output had an
	// unexpected shape.
	KindParseFailure
	// KindNotFound means the addressed queue or stream does not exist.
	KindNotFound
	// KindTimeout means the caller's deadline expired.
	KindTimeout
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindToolUnavailable:
		return "tool unavailable"
	case KindParseFailure:
		return "parse failure"
	case KindNotFound:
		return "not found"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Sentinel errors for errors.Is checks against an *Error.
var (
	ErrToolUnavailable = errors.New("tool unavailable")
	ErrParseFailure    = errors.New("parse failure")
	ErrNotFound        = errors.New("not found")
	ErrTimeout         = errors.New("timeout")
)

// Error is the typed failure returned by every adapter operation.
type Error struct {
	Kind Kind
	// Op is the adapter operation, e.g. "publish".
	Op string
	// Message is a short description, e.g. "failed to parse message id".
	Message string
	// Output holds the raw diagnostic text captured from the tool.
	Output string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	s := fmt.Sprintf("%s: %s", e.Op, msg)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrToolUnavailable:
		return e.Kind == KindToolUnavailable
	case ErrParseFailure:
		return e.Kind == KindParseFailure
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrTimeout:
		return e.Kind == KindTimeout
	}
	return false
}

// ParseError returns a parse failure for op, reading "failed to parse <what>".
func ParseError(op, what, output string) *Error {
	return &Error{
		Kind:    KindParseFailure,
		Op:      op,
		Message: "failed to parse " + what,
		Output:  output,
	}
}

// NotFoundError returns a not-found failure for the named queue.
func NotFoundError(op, queue, output string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Op:      op,
		Message: fmt.Sprintf("queue %q not found", queue),
		Output:  output,
	}
}

// KindOf returns the kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return 0
}

// OutputOf returns the captured tool output carried by err, if any.
func OutputOf(err error) string {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Output
	}
	return ""
}
