package model

import "errors"

// Business outcomes. Everything except ErrTransient is terminal.
var (
	ErrAuthRequired       = errors.New("authentication required")
	ErrForbidden          = errors.New("forbidden")
	ErrNotOwner           = errors.New("registration belongs to another user")
	ErrEventNotFound      = errors.New("event not found")
	ErrEventFull          = errors.New("event is fully booked")
	ErrAlreadyRegistered  = errors.New("already registered for this event")
	ErrNotRegistered      = errors.New("no active registration for this event")
	ErrRegistrationClosed = errors.New("registration for this event is closed")
	ErrInvalidInput       = errors.New("invalid input")
)

// ErrTransient marks storage or Directory unavailability. Only errors
// wrapping it are eligible for retry.
var ErrTransient = errors.New("temporarily unavailable")

// Code is a stable, machine-readable error identifier returned to clients.
type Code string

const (
	CodeAuthRequired       Code = "auth_required"
	CodeForbidden          Code = "forbidden"
	CodeNotOwner           Code = "not_owner"
	CodeEventNotFound      Code = "event_not_found"
	CodeEventFull          Code = "event_full"
	CodeAlreadyRegistered  Code = "already_registered"
	CodeNotRegistered      Code = "not_registered"
	CodeRegistrationClosed Code = "registration_closed"
	CodeInvalidInput       Code = "invalid_input"
	CodeTransient          Code = "transient"
	CodeInternal           Code = "internal"
	CodeOK                 Code = "ok"
)

var codes = []struct {
	err  error
	code Code
}{
	{ErrAuthRequired, CodeAuthRequired},
	{ErrForbidden, CodeForbidden},
	{ErrNotOwner, CodeNotOwner},
	{ErrEventNotFound, CodeEventNotFound},
	{ErrEventFull, CodeEventFull},
	{ErrAlreadyRegistered, CodeAlreadyRegistered},
	{ErrNotRegistered, CodeNotRegistered},
	{ErrRegistrationClosed, CodeRegistrationClosed},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrTransient, CodeTransient},
}

// CodeOf classifies err. A nil error yields CodeOK and anything outside the
// taxonomy yields CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// IsBusiness reports whether err is a terminal business-rule outcome.
func IsBusiness(err error) bool {
	switch CodeOf(err) {
	case CodeOK, CodeTransient, CodeInternal:
		return false
	}
	return true
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
