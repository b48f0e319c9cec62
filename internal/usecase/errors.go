package usecase

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
	ErrorUnknownTenant        ErrorCode = "UNKNOWN_TENANT"
	ErrorCompletionFailed     ErrorCode = "COMPLETION_FAILED"
	ErrorDispatchFailed       ErrorCode = "DISPATCH_FAILED"
	ErrorInvalidInput         ErrorCode = "INVALID_INPUT"
	ErrorInternal             ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or
// ErrorInternal for any other non-nil error.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Code
	}
	return ErrorInternal
}
