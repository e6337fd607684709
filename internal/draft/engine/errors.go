package engine

import (
	"errors"
	"fmt"
)

// Code classifies every error the draft core surfaces to callers. The
// gateway maps codes to HTTP statuses; background workers log and move on.
type Code string

const (
	CodeNotFound           Code = "NOT_FOUND"
	CodeNotHost            Code = "NOT_HOST"
	CodeNotSeatOwner       Code = "NOT_SEAT_OWNER"
	CodeDraftLocked        Code = "DRAFT_LOCKED"
	CodeDraftFull          Code = "DRAFT_FULL"
	CodeAlreadyJoined      Code = "ALREADY_JOINED"
	CodeInvalidSelection   Code = "INVALID_SELECTION"
	CodeStateChanged       Code = "STATE_CHANGED"
	CodeTooFewPlayers      Code = "TOO_FEW_PLAYERS"
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
)

// Error is a typed domain error carrying a code and a human message.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds a typed domain error.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the domain code from err, or "" if err carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsCode reports whether err carries the given domain code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
