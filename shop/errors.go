package shop

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a caller visible failure that the HTTP layer renders with its status and message.
// Anything else returned by the service is an internal error.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Code == "" {
		return fmt.Sprintf("shop error (status=%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AsError unwraps err into an *Error.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func badRequest(code, msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: code, Message: msg}
}

func notFound(code, msg string) *Error {
	return &Error{Status: http.StatusNotFound, Code: code, Message: msg}
}

func forbidden(code, msg string) *Error {
	return &Error{Status: http.StatusForbidden, Code: code, Message: msg}
}

func unauthorized(msg string) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: msg}
}

func internal(code, msg string) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: code, Message: msg}
}

var (
	errPatternNotFound = notFound("PATTERN_NOT_FOUND", "Pattern not found")
	errPatternRequired = badRequest("PATTERN_REQUIRED", "Pattern ID is required")
	errInvalidEmail    = badRequest("INVALID_EMAIL", "Invalid email address")
	errForbidden       = forbidden("FORBIDDEN", "Forbidden")
)
