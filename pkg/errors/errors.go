// Package errors provides structured error types for the wobblecap pipeline.
//
// Every failure surfaced by the captcha engine, the challenge store and the
// HTTP transport carries a machine-readable [Code]. Failures raised inside the
// image pipeline additionally carry the [Stage] that produced them, so a caller
// can tell a word-generation problem from a layout problem without parsing
// messages.
//
// # Error Codes
//
//   - CONFIGURATION: inconsistent configuration, refused at engine construction
//   - RESOURCE_UNAVAILABLE: no font (or other read-only resource) available
//   - LAYOUT_OVERFLOW: the challenge cannot be laid out on the canvas
//   - INVALID_INPUT: malformed caller input (transport, verify requests)
//   - NOT_FOUND / EXPIRED: challenge lookups
//   - INTERNAL: unexpected failures (encoding, storage backends)
//
// # Usage
//
//	err := errors.New(errors.ErrCodeConfiguration, "min length %d exceeds max length %d", lo, hi)
//	if errors.Is(err, errors.ErrCodeConfiguration) {
//	    // refuse to start
//	}
//
//	// Tag with the pipeline stage while keeping the original code
//	return errors.AtStage(errors.StageText, err)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Pipeline errors
	ErrCodeConfiguration       Code = "CONFIGURATION"
	ErrCodeResourceUnavailable Code = "RESOURCE_UNAVAILABLE"
	ErrCodeLayoutOverflow      Code = "LAYOUT_OVERFLOW"

	// Input validation errors
	ErrCodeInvalidInput Code = "INVALID_INPUT"

	// Challenge lookup errors
	ErrCodeNotFound Code = "NOT_FOUND"
	ErrCodeExpired  Code = "EXPIRED"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Stage names the pipeline step an error originated from.
type Stage string

// Pipeline stages, in execution order.
const (
	StageWord       Stage = "word"
	StageBackground Stage = "background"
	StageText       Stage = "text"
	StageFilter     Stage = "filter"
	StageEncode     Stage = "encode"
)

// Error is a structured error with a code, an optional stage and an optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Stage   Stage  // Pipeline stage (empty outside the pipeline)
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := string(e.Code)
	if e.Stage != "" {
		prefix = fmt.Sprintf("%s [%s]", e.Code, e.Stage)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// AtStage tags err with the pipeline stage it came from.
//
// An *Error keeps its code and message; the result is a copy so the original
// value is never mutated. Any other error becomes an INTERNAL error wrapping
// it. AtStage returns nil for a nil error.
func AtStage(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		tagged := *e
		tagged.Stage = stage
		return &tagged
	}
	return &Error{
		Code:    ErrCodeInternal,
		Stage:   stage,
		Message: "unexpected failure",
		Cause:   err,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// GetStage extracts the pipeline stage from an error, if available.
func GetStage(err error) Stage {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
