package tcp

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is matched by SendError{Closed} via errors.Is.
	ErrClosed = errors.New("session closed")
	// ErrQueueFull is matched by SendError{QueueFull}.
	ErrQueueFull = errors.New("outbound queue full")
	// ErrMalformedFrame is matched by DecodeError{MalformedFrame}.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrMissingField is matched by DecodeError{MissingField}.
	ErrMissingField = errors.New("missing field")
)

// DecodeKind classifies decode failures.
type DecodeKind int

const (
	MalformedFrame DecodeKind = iota
	MissingField
)

func (k DecodeKind) String() string {
	switch k {
	case MalformedFrame:
		return "malformed_frame"
	case MissingField:
		return "missing_field"
	default:
		return "unknown"
	}
}

// DecodeError is returned for unparseable frames and, lazily, for fields a
// handler requires but the sender left out.
type DecodeError struct {
	Kind   DecodeKind
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	switch {
	case e.Kind == MissingField:
		return fmt.Sprintf("missing field %q", e.Field)
	case e.Field != "":
		return fmt.Sprintf("malformed frame: field %q: %s", e.Field, e.Reason)
	default:
		return fmt.Sprintf("malformed frame: %s", e.Reason)
	}
}

func (e *DecodeError) Is(target error) bool {
	switch target {
	case ErrMalformedFrame:
		return e.Kind == MalformedFrame
	case ErrMissingField:
		return e.Kind == MissingField
	}
	return false
}

// ParseError reports a command field whose text is not a valid value.
type ParseError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("cannot parse %q: %s", e.Value, e.Reason)
	}
	return fmt.Sprintf("cannot parse field %q value %q: %s", e.Field, e.Value, e.Reason)
}

// SendKind classifies send failures.
type SendKind int

const (
	Closed SendKind = iota
	WriteFailed
	QueueFull
)

// SendError is returned by Session.Send. It is never raised as a fault.
type SendError struct {
	Kind SendKind
	Err  error
}

func (e *SendError) Error() string {
	switch e.Kind {
	case Closed:
		return "send on closed session"
	case QueueFull:
		return "send dropped: outbound queue full"
	default:
		return fmt.Sprintf("send failed: %v", e.Err)
	}
}

func (e *SendError) Unwrap() error { return e.Err }

func (e *SendError) Is(target error) bool {
	switch target {
	case ErrClosed:
		return e.Kind == Closed
	case ErrQueueFull:
		return e.Kind == QueueFull
	}
	return false
}

// BindError is fatal at startup: the listen address is invalid or taken.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }
