// Package apperr defines the error kinds that cross the service boundary.
//
// Services return *Error values; the HTTP layer switches over Kind to pick a
// status code and renders Message to the client. Wrapped causes are for logs
// only.
package apperr

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	}

	return fmt.Sprintf("kind(%d)", uint8(k))
}

type Code string

const (
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeUserExists         Code = "USER_EXISTS"
	CodeUserNotFound       Code = "USER_NOT_FOUND"
	CodeNoRefreshToken     Code = "NO_REFRESH_TOKEN"
	CodeRefreshExpired     Code = "REFRESH_EXPIRED"
	CodeRefreshInvalid     Code = "REFRESH_INVALID"
	CodeNoToken            Code = "NO_TOKEN"
	CodeTokenExpired       Code = "TOKEN_EXPIRED"
	CodeTokenInvalid       Code = "TOKEN_INVALID"
	CodeInvalidDelta       Code = "INVALID_DELTA"
	CodeValidation         Code = "VALIDATION"
	CodeInternal           Code = "INTERNAL"
)

type Error struct {
	Kind    Kind
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

// Is matches on Code so sentinel values below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return e.Code == t.Code
}

func New(kind Kind, code Code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Wrap(err error, kind Kind, code Code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Err: err}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "internal error", Err: err}
}

// As returns the *Error in err's chain. Errors that are not *Error are
// reported as internal.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return Internal(err)
}

var (
	ErrInvalidCredentials = New(KindUnauthorized, CodeInvalidCredentials, "Invalid credentials")
	ErrUserExists         = New(KindConflict, CodeUserExists, "User with that email or username already exists")
	ErrUserNotFound       = New(KindNotFound, CodeUserNotFound, "User not found")
	ErrNoRefreshToken     = New(KindUnauthorized, CodeNoRefreshToken, "No refresh token provided")
	ErrRefreshExpired     = New(KindForbidden, CodeRefreshExpired, "Refresh token expired, please login again")
	ErrRefreshInvalid     = New(KindForbidden, CodeRefreshInvalid, "Invalid refresh token")
	ErrNoToken            = New(KindUnauthorized, CodeNoToken, "No authentication token provided")
	ErrTokenExpired       = New(KindUnauthorized, CodeTokenExpired, "Token expired, please login again")
	ErrTokenInvalid       = New(KindUnauthorized, CodeTokenInvalid, "Invalid token")
	ErrInvalidDelta       = New(KindValidation, CodeInvalidDelta, "Invalid score change value")
)
