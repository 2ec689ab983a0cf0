package domain

import (
	"errors"
	"fmt"
)

// Kind classifies probe failures so callers can tell terminal connectivity
// problems from non-fatal diagnostics.
type Kind string

const (
	KindDeviceNotFound     Kind = "DEVICE_NOT_FOUND"
	KindVerificationFailed Kind = "VERIFICATION_FAILED"
	KindForwardFailed      Kind = "FORWARD_FAILED"
	KindLaunchFailed       Kind = "LAUNCH_FAILED"
	KindConnectFailed      Kind = "CONNECT_FAILED"
	KindTimedOut           Kind = "TIMED_OUT"
	KindRemoteClosed       Kind = "REMOTE_CLOSED"
	KindDecodeFailed       Kind = "DECODE_FAILED"
)

// Sentinels for errors.Is matching against an *Error of the same kind.
var (
	ErrDeviceNotFound     = &Error{Kind: KindDeviceNotFound}
	ErrVerificationFailed = &Error{Kind: KindVerificationFailed}
	ErrForwardFailed      = &Error{Kind: KindForwardFailed}
	ErrLaunchFailed       = &Error{Kind: KindLaunchFailed}
	ErrConnectFailed      = &Error{Kind: KindConnectFailed}
	ErrTimedOut           = &Error{Kind: KindTimedOut}
	ErrRemoteClosed       = &Error{Kind: KindRemoteClosed}
	ErrDecodeFailed       = &Error{Kind: KindDecodeFailed}
)

// Error is a probe failure of a known kind.
type Error struct {
	Kind Kind
	Op   string // what was being attempted, e.g. "forward tcp:27183"
	Err  error  // underlying cause, may be nil
}

// NewError wraps cause as a failure of the given kind.
func NewError(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the Kind of err, or "" if err is not a probe failure.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Errorf builds a kinded error with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return NewError(kind, op, fmt.Errorf(format, args...))
}
