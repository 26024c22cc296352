package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Code classifies infrastructure failures
type Code string

const (
	CodeConfigInvalid   Code = "CONFIG_INVALID"
	CodeDatabaseError   Code = "DATABASE_ERROR"
	CodeInternalError   Code = "INTERNAL_ERROR"
	CodeExternalService Code = "EXTERNAL_SERVICE_ERROR"
)

// AppError is an infrastructure error: configuration, storage or an external
// service. Domain failures use the kinded errors in domain/core instead.
type AppError struct {
	Code    Code
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Cause.Error()
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches another AppError by code, so errors.Is(err, ConfigInvalid("")) works
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// Kind is the lower-case code; the API reports it next to the domain kinds
func (e *AppError) Kind() string { return strings.ToLower(string(e.Code)) }

// Wrap adds context to err. The code of an AppError inside err is kept;
// anything else becomes INTERNAL_ERROR.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{Code: CodeOf(err), Message: message, Cause: err}
}

// CodeOf returns the code of the outermost AppError in the chain
func CodeOf(err error) Code {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternalError
}

func ConfigInvalid(message string) *AppError {
	return &AppError{Code: CodeConfigInvalid, Message: message}
}

func DatabaseError(message string, cause error) *AppError {
	return &AppError{Code: CodeDatabaseError, Message: message, Cause: cause}
}

// ExternalServiceError reports a failed call to service
func ExternalServiceError(service string, cause error) *AppError {
	return &AppError{Code: CodeExternalService, Message: service + " call failed", Cause: cause}
}
