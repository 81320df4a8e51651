package ussd

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAttached is returned when no engine is connected to the OS UI.
	ErrNotAttached = errors.New("automation engine not attached")
	// ErrSessionCanceled is delivered to a waiting caller when its session is canceled.
	ErrSessionCanceled = errors.New("ussd session canceled")
	// ErrSessionSuperseded is delivered when a newer session replaces the open one.
	ErrSessionSuperseded = errors.New("ussd session superseded by a newer request")
	// ErrPermissionRequired is returned to command-line callers whose send
	// was short-circuited to the permission settings screen.
	ErrPermissionRequired = errors.New("automation permission not granted; enable it on the device and retry")
)

// Failure codes surfaced to the command caller.
const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeUnexpected      = "UNEXPECTED_ERROR"
)

// Failure is a structured error returned across the command boundary.
type Failure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (f *Failure) Error() string {
	return f.Code + ": " + f.Message
}

// InvalidArgument reports a missing or malformed required argument.
func InvalidArgument(format string, args ...interface{}) *Failure {
	return &Failure{Code: CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// Unexpected wraps an internal fault.
func Unexpected(cause interface{}) *Failure {
	return &Failure{Code: CodeUnexpected, Message: fmt.Sprintf("An unexpected error occurred: %v", cause)}
}

// AsFailure converts err into a Failure, wrapping unknown errors as unexpected.
// Returns nil for a nil err.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return Unexpected(err)
}

// Fault is an error from the host UI layer.
type Fault struct {
	Transient bool
	Op        string
	Err       error
}

func (f *Fault) Error() string {
	kind := "terminal"
	if f.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s %s fault: %v", kind, f.Op, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// TransientFault marks err as retryable.
func TransientFault(op string, err error) error {
	return &Fault{Transient: true, Op: op, Err: err}
}

// TerminalFault marks err as not retryable.
func TerminalFault(op string, err error) error {
	return &Fault{Op: op, Err: err}
}

// IsTransient reports whether err is a retryable host fault.
func IsTransient(err error) bool {
	var f *Fault
	return errors.As(err, &f) && f.Transient
}
