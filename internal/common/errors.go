package common

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes reported to API clients in the error_message payload.
const (
	CodeValidation    = 401
	CodeAuthorization = 403
	CodeInternal      = 500
)

// Error is a tagged platform error carrying a stable code.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// NewValidationError reports malformed or unacceptable input.
func NewValidationError(format string, args ...interface{}) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NewAuthorizationError reports a caller that is not allowed to act.
func NewAuthorizationError(format string, args ...interface{}) *Error {
	return &Error{Code: CodeAuthorization, Message: fmt.Sprintf(format, args...)}
}

// NewInternalError reports a failure the caller cannot fix.
func NewInternalError(format string, args ...interface{}) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// HTTPStatus maps an error to the response status code. Tagged errors
// keep their code, everything else is an internal failure.
func HTTPStatus(err error) int {
	var perr *Error
	if errors.As(err, &perr) {
		switch perr.Code {
		case CodeValidation:
			return http.StatusUnauthorized
		case CodeAuthorization:
			return http.StatusForbidden
		}
	}
	return http.StatusInternalServerError
}
