package wire

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a kind of message error.
type ErrorCode int

const (
	// ErrFraming indicates the byte stream no longer lines up with
	// message boundaries: a malformed header, a foreign magic, a payload
	// shorter than declared or a checksum mismatch. The connection
	// cannot be recovered.
	ErrFraming ErrorCode = iota

	// ErrUnknownCommand indicates a header carried a command this package
	// does not understand. The message is skipped.
	ErrUnknownCommand

	// ErrSerialization indicates a message could not be encoded or
	// decoded according to its layout.
	ErrSerialization
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrFraming:        "ErrFraming",
	ErrUnknownCommand: "ErrUnknownCommand",
	ErrSerialization:  "ErrSerialization",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// MessageError describes an issue with a message.
//
// This provides a mechanism for the caller to type assert the error to
// differentiate between general io errors such as io.EOF and issues that
// resulted from malformed messages.
type MessageError struct {
	Func        string    // Function name
	Code        ErrorCode // Kind of failure
	Description string    // Human readable description of the issue
	Err         error     // Underlying error, if any
}

// Error satisfies the error interface and prints human-readable errors.
func (e *MessageError) Error() string {
	if e.Func != "" {
		return fmt.Sprintf("%v: %v", e.Func, e.Description)
	}
	return e.Description
}

// Unwrap returns the underlying error, if any.
func (e *MessageError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a MessageError with the same code, so
// errors.Is(err, &MessageError{Code: ErrFraming}) matches any framing
// failure.
func (e *MessageError) Is(target error) bool {
	t, ok := target.(*MessageError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// messageError creates an error for the given function, code and
// description.
func messageError(f string, code ErrorCode, desc string) *MessageError {
	return &MessageError{Func: f, Code: code, Description: desc}
}

// wrapError creates an error for the given function and code that wraps
// err.
func wrapError(f string, code ErrorCode, err error) *MessageError {
	return &MessageError{Func: f, Code: code, Description: err.Error(), Err: err}
}

// IsErrorCode returns whether err is, or wraps, a MessageError carrying
// code.
func IsErrorCode(err error, code ErrorCode) bool {
	var me *MessageError
	return errors.As(err, &me) && me.Code == code
}
