package booking

import (
	"errors"
	"fmt"
)

// Code classifies a booking failure.
type Code string

const (
	CodeInput                   Code = "input"
	CodeNotFound                Code = "not_found"
	CodeConflict                Code = "conflict"
	CodeCollaboratorUnavailable Code = "collaborator_unavailable"
	CodeLedgerUnavailable       Code = "ledger_unavailable"
)

// Error carries a Code plus an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// InputError reports an unparseable or out-of-range value.
func InputError(message string) *Error {
	return &Error{Code: CodeInput, Message: message}
}

// NotFoundError reports an unknown department, test, doctor or booking.
func NotFoundError(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

// ConflictError reports that the slot is already taken.
func ConflictError(message string) *Error {
	return &Error{Code: CodeConflict, Message: message}
}

// CollaboratorUnavailable wraps a failure of the QA service or SMS sender.
func CollaboratorUnavailable(collaborator string, err error) *Error {
	return &Error{Code: CodeCollaboratorUnavailable, Message: collaborator + " unavailable", Err: err}
}

// LedgerUnavailable wraps a failure of the authoritative store.
func LedgerUnavailable(op string, err error) *Error {
	return &Error{Code: CodeLedgerUnavailable, Message: op, Err: err}
}

// CodeOf returns the Code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

func IsInput(err error) bool { return CodeOf(err) == CodeInput }
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }
func IsConflict(err error) bool { return CodeOf(err) == CodeConflict }
func IsLedgerDown(err error) bool { return CodeOf(err) == CodeLedgerUnavailable }
func IsCollaborator(err error) bool { return CodeOf(err) == CodeCollaboratorUnavailable }
