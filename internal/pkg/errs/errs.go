/*
Package errs provides custom error types and application-level error code constants.

This file defines the CustomError struct, which implements the standard Go error interface
and includes a business code, a user-friendly message, an HTTP status code and an
optional underlying cause for unified error reporting.
*/
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"livechat/internal/pkg/logx"
)

// CustomError is the custom error structure used throughout the application.
// It wraps the Go error interface, adding a business code and HTTP status code.
type CustomError struct {
	// Code is the business error code (see constants definition).
	Code int

	// Message is the user-friendly error description.
	Message string

	// Status is the standard HTTP status code corresponding to this error.
	Status int

	// Cause is the underlying error, if any. It is never shown to clients.
	Cause error
}

// Error implements the standard Go error interface. It returns a formatted
// error string containing the error code, HTTP status, message and cause.
func (e *CustomError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("Error Code %d (HTTP %d): %s: %v", e.Code, e.Status, e.Message, e.Cause)
	}
	return fmt.Sprintf("Error Code %d (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e *CustomError) Unwrap() error {
	return e.Cause
}

// NewError constructs and returns a new *CustomError instance based on a predefined error code.
// The optional details parameter allows for formatting arguments (printf-style) to be supplied
// for the error message. If an unknown code is provided, it defaults to returning ErrUnknown.
func NewError(code int, details ...any) *CustomError {
	templateErr, ok := errorMap[code]

	if !ok {
		logx.Error(
			fmt.Errorf("attempted to create an error with an unknown code in errorMap"),
			"Unknown error code requested",
			"requested_code", code,
		)

		unknownErr := errorMap[ErrUnknown]
		return &CustomError{
			Code:    unknownErr.Code,
			Message: unknownErr.Message,
			Status:  unknownErr.Status,
		}
	}

	customErr := templateErr

	if customErr.Status == 0 {
		customErr.Status = http.StatusOK
	}

	if len(details) > 0 {
		if strings.Contains(customErr.Message, "%") {
			customErr.Message = fmt.Sprintf(customErr.Message, details...)
		} else {
			logx.Warn(
				"Details provided for error, but message template has no formatting placeholders. Details ignored.",
				"code", code,
			)
		}
	}

	return &customErr
}

// Wrap builds the error for code and records cause as its underlying error.
func Wrap(code int, cause error, details ...any) *CustomError {
	customErr := NewError(code, details...)
	customErr.Cause = cause
	return customErr
}

// HasCode reports whether err is, or wraps, a CustomError with the given code.
func HasCode(err error, code int) bool {
	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr.Code == code
	}
	return false
}

// From converts any error into a *CustomError. Errors that are not already
// CustomErrors become ErrUnknown with err as the cause.
func From(err error) *CustomError {
	if err == nil {
		return nil
	}

	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr
	}

	return Wrap(ErrUnknown, err)
}
