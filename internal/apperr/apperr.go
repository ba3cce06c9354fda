// Package apperr defines the error taxonomy shared by the workflow, the
// repositories and the HTTP layer. Every error carries a Kind (what the caller
// should do about it) and a Code (what exactly went wrong).
package apperr

import (
	"errors"
	"fmt"
)

// Kind groups errors by how a caller should react to them.
type Kind string

const (
	// KindFatalInput means the input has to be fixed; retrying is pointless.
	KindFatalInput Kind = "fatal_input"
	// KindValidation is a per-item data problem that does not stop the pipeline.
	KindValidation Kind = "validation"
	// KindExternal means a collaborator failed or timed out; the stage may be retried.
	KindExternal Kind = "external"
	// KindStateConflict means the entity is not in a state that allows the operation.
	KindStateConflict Kind = "state_conflict"
	KindNotFound      Kind = "not_found"
	KindEmptyReason   Kind = "empty_reason"
	KindInternal      Kind = "internal"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnsupportedFileType Code = "unsupported_file_type"
	CodeEmptyFile           Code = "empty_file"
	CodeFileTooLarge        Code = "file_too_large"
	CodeMissingColumns      Code = "missing_columns"
	CodeParse               Code = "parse_error"
	CodeInvalidInput        Code = "invalid_input"

	CodeThreatDetected Code = "threat_detected"
	CodeTestSendFailed Code = "test_send_failed"
	CodeTimeout        Code = "timeout"
	CodeCollaborator   Code = "collaborator_failed"

	CodeInvalidState   Code = "invalid_state"
	CodeTestGate       Code = "test_gate_not_passed"
	CodeNoValidContact Code = "no_valid_contacts"

	CodeNotFound    Code = "not_found"
	CodeEmptyReason Code = "empty_reason"
	CodeInternal    Code = "internal"
)

var codeKinds = map[Code]Kind{
	CodeUnsupportedFileType: KindFatalInput,
	CodeEmptyFile:           KindFatalInput,
	CodeFileTooLarge:        KindFatalInput,
	CodeMissingColumns:      KindFatalInput,
	CodeParse:               KindFatalInput,
	CodeInvalidInput:        KindFatalInput,
	CodeThreatDetected:      KindExternal,
	CodeTestSendFailed:      KindExternal,
	CodeTimeout:             KindExternal,
	CodeCollaborator:        KindExternal,
	CodeInvalidState:        KindStateConflict,
	CodeTestGate:            KindStateConflict,
	CodeNoValidContact:      KindFatalInput,
	CodeNotFound:            KindNotFound,
	CodeEmptyReason:         KindEmptyReason,
	CodeInternal:            KindInternal,
}

// Sentinels for errors.Is checks. Matching is by Code only.
var (
	ErrUnsupportedFileType = &Error{Code: CodeUnsupportedFileType}
	ErrEmptyFile           = &Error{Code: CodeEmptyFile}
	ErrFileTooLarge        = &Error{Code: CodeFileTooLarge}
	ErrMissingColumns      = &Error{Code: CodeMissingColumns}
	ErrParse               = &Error{Code: CodeParse}
	ErrInvalidInput        = &Error{Code: CodeInvalidInput}
	ErrThreatDetected      = &Error{Code: CodeThreatDetected}
	ErrTestSendFailed      = &Error{Code: CodeTestSendFailed}
	ErrTimeout             = &Error{Code: CodeTimeout}
	ErrInvalidState        = &Error{Code: CodeInvalidState}
	ErrTestGate            = &Error{Code: CodeTestGate}
	ErrNoValidContacts     = &Error{Code: CodeNoValidContact}
	ErrNotFound            = &Error{Code: CodeNotFound}
	ErrEmptyReason         = &Error{Code: CodeEmptyReason}
)

// Error is a classified error with a human-readable message.
type Error struct {
	Code    Code
	Op      string // operation that failed
	Message string
	Err     error // underlying error
}

// New creates a classified error.
func New(code Code, op, message string) *Error {
	return &Error{Code: code, Op: op, Message: message}
}

// Wrap creates a classified error around an underlying cause.
func Wrap(code Code, op, message string, err error) *Error {
	return &Error{Code: code, Op: op, Message: message, Err: err}
}

// Newf creates a classified error with a formatted message.
func Newf(code Code, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Kind reports the error's kind, derived from its code.
func (e *Error) Kind() Kind {
	if k, ok := codeKinds[e.Code]; ok {
		return k
	}
	return KindInternal
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal when err is unclassified.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind()
	}
	return KindInternal
}

// CodeOf returns the code of err, or CodeInternal when err is unclassified.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}
