package tmin

import (
	"errors"
	"fmt"
	"syscall"
)

// Error represents a structured minimizer error with context and errno
// mapping, grounded on go-ublk's *ublk.Error.
type Error struct {
	Op    string    // Operation that failed (e.g., "handshake", "minimize")
	Code  ErrorCode // High-level error category
	Errno syscall.Errno
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		return fmt.Sprintf("tmin: %s: %s", e.Op, msg)
	}
	return fmt.Sprintf("tmin: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode categorizes fatal errors per the error-kind taxonomy (spec §7).
type ErrorCode string

const (
	ErrCodeUsage                  ErrorCode = "usage error"
	ErrCodeIO                     ErrorCode = "I/O error"
	ErrCodeProtocol               ErrorCode = "oracle protocol error"
	ErrCodeSemanticMismatch       ErrorCode = "semantic mismatch"
	ErrCodeInstrumentationMissing ErrorCode = "instrumentation missing"
	ErrCodeInternal               ErrorCode = "internal error"
)

// NewError constructs a structured error with no wrapped cause.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// WrapError wraps inner with minimizer context. A bare syscall.Errno is
// re-categorized via mapErrnoToCode rather than trusting the caller's
// code, the way go-ublk's WrapError maps errnos to UblkErrorCode instead
// of the category its own callers happen to reach for.
func WrapError(op string, code ErrorCode, inner error) *Error {
	if inner == nil {
		return nil
	}
	if te, ok := inner.(*Error); ok {
		return &Error{Op: op, Code: te.Code, Errno: te.Errno, Msg: te.Msg, Inner: te.Inner}
	}
	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Code: mapErrnoToCode(errno), Errno: errno, Msg: errno.Error(), Inner: inner}
	}
	return &Error{Op: op, Code: code, Msg: inner.Error(), Inner: inner}
}

// mapErrnoToCode maps a kernel errno to the error-kind taxonomy in spec
// §7, re-purposed from go-ublk's mapErrnoToCode (ENOENT/EBUSY/EINVAL/...)
// onto the minimizer's own categories instead of device-lifecycle ones.
func mapErrnoToCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case syscall.EINVAL, syscall.E2BIG, syscall.ENOSYS, syscall.EOPNOTSUPP:
		return ErrCodeUsage
	case syscall.ETIMEDOUT:
		return ErrCodeProtocol
	case syscall.ENOENT, syscall.EACCES, syscall.EPERM, syscall.ENOMEM, syscall.ENOSPC:
		return ErrCodeIO
	default:
		return ErrCodeIO
	}
}

// IsCode reports whether err is a *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
