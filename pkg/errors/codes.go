package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique identifier for specific error conditions in lspbridge.
type ErrorCode int

const (
	ErrCodeUnknown       ErrorCode = 1000
	ErrCodeConfigInvalid ErrorCode = 1001

	// Environment: user-facing and actionable, never fatal
	ErrCodeProjectNotFound     ErrorCode = 2001
	ErrCodeExecutableInvalid   ErrorCode = 2002
	ErrCodeVersionMismatch     ErrorCode = 2003
	ErrCodeHeadlessUnsupported ErrorCode = 2004

	// Process & resources
	ErrCodeProcessStartFail ErrorCode = 3001
	ErrCodePortAllocFail    ErrorCode = 3002

	// Connectivity
	ErrCodeConnectFailed  ErrorCode = 4001
	ErrCodeRetryExhausted ErrorCode = 4002
)

// LSPBridgeError is a custom error type that provides structured error information,
// including an error code, the operation being performed, and the underlying cause.
type LSPBridgeError struct {
	// Code is the specific error code.
	Code ErrorCode
	// Msg is a human-readable description of the error.
	Msg string
	// Operation describes the action being performed when the error occurred.
	Operation string
	// Err is the underlying error that caused this error, if any.
	Err error
}

// Error returns a formatted string representation of the error.
func (e *LSPBridgeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %s (cause: %v)", e.Code, e.Operation, e.Msg, e.Err)
	}
	return fmt.Sprintf("[%d] %s: %s", e.Code, e.Operation, e.Msg)
}

// Unwrap returns the underlying error.
func (e *LSPBridgeError) Unwrap() error {
	return e.Err
}

// New creates a new LSPBridgeError with the specified code, operation, message, and underlying error.
func New(code ErrorCode, op, msg string, err error) error {
	return &LSPBridgeError{
		Code:      code,
		Msg:       msg,
		Operation: op,
		Err:       err,
	}
}

// CodeOf returns the code of the first LSPBridgeError in err's chain,
// or ErrCodeUnknown when there is none.
func CodeOf(err error) ErrorCode {
	var le *LSPBridgeError
	if stderrors.As(err, &le) {
		return le.Code
	}
	return ErrCodeUnknown
}

// MessageOf returns the user-facing message of the first LSPBridgeError in
// err's chain, falling back to err.Error().
func MessageOf(err error) string {
	var le *LSPBridgeError
	if stderrors.As(err, &le) {
		return le.Msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Personal.AI order the ending
