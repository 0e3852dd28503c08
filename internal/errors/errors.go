package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess         Code = 0
	CodeInternal        Code = 1
	CodeUsage           Code = 2
	CodeAuth            Code = 10
	CodeRateLimited     Code = 11
	CodeTransport       Code = 12
	CodeUpstream        Code = 13
	CodeNotFound        Code = 14
	CodeProtocol        Code = 15
	CodeInvalidAmount   Code = 16
	CodeToolNotFound    Code = 17
	CodeMissingArgument Code = 18
	CodeMaxRounds       Code = 19
	CodeCancelled       Code = 20
	CodeBlocked         Code = 21
)

// Error is a typed error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Is reports whether the outermost coded error in err's chain has the given code.
func Is(err error, code Code) bool {
	if e, ok := As(err); ok {
		return e.Code == code
	}
	return false
}

// Retryable reports whether err describes a transient availability failure.
func Retryable(err error) bool {
	e, ok := As(err)
	if !ok {
		return false
	}
	switch e.Code {
	case CodeTransport, CodeRateLimited:
		return true
	default:
		return false
	}
}

func (c Code) String() string {
	switch c {
	case CodeSuccess:
		return "ok"
	case CodeUsage:
		return "usage_error"
	case CodeAuth:
		return "auth_error"
	case CodeRateLimited:
		return "rate_limited"
	case CodeTransport:
		return "transport_error"
	case CodeUpstream:
		return "upstream_error"
	case CodeNotFound:
		return "not_found"
	case CodeProtocol:
		return "protocol_error"
	case CodeInvalidAmount:
		return "invalid_amount"
	case CodeToolNotFound:
		return "tool_not_found"
	case CodeMissingArgument:
		return "missing_argument"
	case CodeMaxRounds:
		return "max_rounds_exceeded"
	case CodeCancelled:
		return "cancelled"
	case CodeBlocked:
		return "blocked"
	default:
		return "internal_error"
	}
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if cliErr, ok := As(err); ok {
		return int(cliErr.Code)
	}
	return int(CodeInternal)
}
