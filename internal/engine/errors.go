package engine

import (
	"errors"
	"fmt"

	"github.com/arkilian/timeline/internal/snl"
)

// Code classifies engine failures.
type Code string

const (
	CodeUnauthorized Code = "unauthorized"
	CodeBadCommand   Code = "bad_command"
	CodeNotFound     Code = "not_found"
	CodeInternal     Code = "internal"
)

// Error is returned by Engine.Execute.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("engine: %s: %s", e.Code, e.Message)
}

// Is lets not-found errors match snl.ErrNotFound.
func (e *Error) Is(target error) bool {
	if target == snl.ErrNotFound {
		return e.Code == CodeNotFound
	}
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

func errorf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the engine code of err, or "" when err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
