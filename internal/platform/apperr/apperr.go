// Package apperr defines the typed failures returned by the domain engines.
//
// Every engine error carries a Kind (what class of failure happened) and a
// Code (which rule rejected the request). Callers branch with errors.Is
// against the exported sentinels or with KindOf, never by matching strings.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the failure class of an engine error.
type Kind string

const (
	KindNotFound             Kind = "not_found"
	KindValidation           Kind = "validation"
	KindConflict             Kind = "conflict"
	KindInsufficientResource Kind = "insufficient_resource"
	KindImmutableState       Kind = "immutable_state"
	KindStorageFailure       Kind = "storage_failure"
)

// Code identifies the rule that produced the error.
type Code string

const (
	CodeNone               Code = ""
	CodeSlotConflict       Code = "slot_conflict"
	CodeDuplicateKey       Code = "duplicate_key"
	CodeEmptyBill          Code = "empty_bill"
	CodeMissingField       Code = "missing_field"
	CodeInvalidValue       Code = "invalid_value"
	CodeOverpayment        Code = "overpayment"
	CodeFinalizedImmutable Code = "finalized_immutable"
	CodeTerminalState      Code = "terminal_state"
	CodeInsufficientStock  Code = "insufficient_stock"
	CodeExpired            Code = "expired"
	CodeMedicationNotFound Code = "medication_not_found"
)

// Error is the concrete error value returned by the engines.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, and by code when the target sets one.
// This lets errors.Is(err, ErrExpired) and errors.Is(err, ErrNotFound) both work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == CodeNone || t.Code == e.Code
}

// Sentinels for errors.Is. Kind-only sentinels match any code of that kind.
var (
	ErrNotFound             = &Error{Kind: KindNotFound, Message: "not found"}
	ErrValidation           = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrConflict             = &Error{Kind: KindConflict, Message: "conflict"}
	ErrInsufficientResource = &Error{Kind: KindInsufficientResource, Message: "insufficient resource"}
	ErrImmutableState       = &Error{Kind: KindImmutableState, Message: "immutable state"}
	ErrStorageFailure       = &Error{Kind: KindStorageFailure, Message: "storage failure"}

	ErrSlotConflict       = &Error{Kind: KindConflict, Code: CodeSlotConflict, Message: "slot conflict"}
	ErrDuplicateKey       = &Error{Kind: KindConflict, Code: CodeDuplicateKey, Message: "duplicate key"}
	ErrEmptyBill          = &Error{Kind: KindValidation, Code: CodeEmptyBill, Message: "empty bill"}
	ErrMissingField       = &Error{Kind: KindValidation, Code: CodeMissingField, Message: "missing field"}
	ErrOverpayment        = &Error{Kind: KindValidation, Code: CodeOverpayment, Message: "overpayment"}
	ErrFinalizedImmutable = &Error{Kind: KindImmutableState, Code: CodeFinalizedImmutable, Message: "finalized"}
	ErrTerminalState      = &Error{Kind: KindImmutableState, Code: CodeTerminalState, Message: "terminal state"}
	ErrInsufficientStock  = &Error{Kind: KindInsufficientResource, Code: CodeInsufficientStock, Message: "insufficient stock"}
	ErrExpired            = &Error{Kind: KindInsufficientResource, Code: CodeExpired, Message: "expired"}
	ErrMedicationNotFound = &Error{Kind: KindNotFound, Code: CodeMedicationNotFound, Message: "medication not found"}
)

func newf(kind Kind, code Code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports that the named entity does not exist.
func NotFound(entity string, id any) *Error {
	return newf(KindNotFound, CodeNone, "%s %v not found", entity, id)
}

// MissingField reports an absent required field.
func MissingField(field string) *Error {
	return newf(KindValidation, CodeMissingField, "%s is required", field)
}

// Invalid reports a present but unacceptable value.
func Invalid(format string, args ...any) *Error {
	return newf(KindValidation, CodeInvalidValue, format, args...)
}

// New builds an error with an explicit kind and code.
func New(kind Kind, code Code, format string, args ...any) *Error {
	return newf(kind, code, format, args...)
}

// Storage wraps a persistence failure.
func Storage(op string, err error) *Error {
	return &Error{Kind: KindStorageFailure, Message: op, Err: err}
}

// KindOf returns the kind of err, or KindStorageFailure for errors that did
// not originate in this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorageFailure
}

// CodeOf returns the code of err, or CodeNone.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeNone
}
