package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is the reason code reported to clients on rejection.
type ErrorCode string

const (
	CodeDuplicateConnection ErrorCode = "DuplicateConnection"
	CodeInvalidState        ErrorCode = "InvalidState"
	CodeRoomNotFound        ErrorCode = "RoomNotFound"
	CodeRoomFull            ErrorCode = "RoomFull"
	CodeNotYourTurn         ErrorCode = "NotYourTurn"
	CodeIllegalMove         ErrorCode = "IllegalMove"
	CodeNotAPlayer          ErrorCode = "NotAPlayer"
	CodeBadRequest          ErrorCode = "BadRequest"
	CodeInternal            ErrorCode = "Internal"
)

// Error is a protocol-level rejection. Two Errors match under errors.Is
// when their codes are equal, so callers may attach detail freely.
type Error struct {
	Code      ErrorCode
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	if e.Message != "" {
		return string(e.Code) + ": " + e.Message
	}
	return string(e.Code)
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrDuplicateConnection = &Error{Code: CodeDuplicateConnection}
	ErrInvalidState        = &Error{Code: CodeInvalidState}
	ErrRoomNotFound        = &Error{Code: CodeRoomNotFound}
	ErrRoomFull            = &Error{Code: CodeRoomFull}
	ErrNotYourTurn         = &Error{Code: CodeNotYourTurn}
	ErrIllegalMove         = &Error{Code: CodeIllegalMove}
	ErrNotAPlayer          = &Error{Code: CodeNotAPlayer}
	ErrBadRequest          = &Error{Code: CodeBadRequest}
)

// Errorf returns an Error with the code of base and a formatted message.
func Errorf(base *Error, format string, args ...any) *Error {
	return &Error{Code: base.Code, Message: fmt.Sprintf(format, args...), Retryable: base.Retryable}
}

// CodeOf extracts the rejection code; unknown errors map to CodeInternal.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsRetryable reports whether the rejection may succeed on resubmission.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}
