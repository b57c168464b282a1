// Package errors provides structured error types for the timeline.
// Every error carries a category, a code and a message so callers can branch
// on the kind of failure without string matching.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by the taxonomy of the timeline core.
type ErrorCategory string

const (
	ErrCategoryValidation   ErrorCategory = "VALIDATION"
	ErrCategoryNotFound     ErrorCategory = "NOT_FOUND"
	ErrCategoryMalformedKey ErrorCategory = "MALFORMED_KEY"
	ErrCategoryNamespace    ErrorCategory = "NAMESPACE"
	ErrCategoryStore        ErrorCategory = "STORE"
	ErrCategoryInternal     ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeMissingField = "MISSING_FIELD"
	CodeInvalidValue = "INVALID_VALUE"
	CodeInvalidPath  = "INVALID_PATH"
	CodeImmutable    = "IMMUTABLE_FIELD"

	// Not found codes
	CodeEntryNotFound = "ENTRY_NOT_FOUND"

	// Malformed key codes
	CodeTooFewSegments = "TOO_FEW_SEGMENTS"
	CodeBadSegment     = "BAD_SEGMENT"

	// Namespace codes
	CodeEmptyEmail       = "EMPTY_EMAIL"
	CodeIllegalNamespace = "ILLEGAL_NAMESPACE"

	// Store codes
	CodeExecuteFailed = "EXECUTE_FAILED"
	CodeDecodeFailed  = "DECODE_FAILED"
	CodeArchiveFailed = "ARCHIVE_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// TimelineError is the structured error type used throughout the module.
type TimelineError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error returns a formatted error string.
func (e *TimelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *TimelineError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
// A target with an empty code matches any code in the category.
func (e *TimelineError) Is(target error) bool {
	var t *TimelineError
	if errors.As(target, &t) {
		if e.Category != t.Category {
			return false
		}
		return t.Code == "" || e.Code == t.Code
	}
	return false
}

// New creates a new TimelineError.
func New(category ErrorCategory, code, message string) *TimelineError {
	return &TimelineError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// Wrap creates a new TimelineError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *TimelineError {
	return &TimelineError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *TimelineError) WithDetails(details map[string]interface{}) *TimelineError {
	cp := *e
	cp.Details = details
	return &cp
}

// Sentinels usable with errors.Is to test for a whole category.
var (
	ErrValidation   = &TimelineError{Category: ErrCategoryValidation}
	ErrNotFound     = &TimelineError{Category: ErrCategoryNotFound}
	ErrMalformedKey = &TimelineError{Category: ErrCategoryMalformedKey}
	ErrNamespace    = &TimelineError{Category: ErrCategoryNamespace}
	ErrStore        = &TimelineError{Category: ErrCategoryStore}
)

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a TimelineError.
func GetCategory(err error) ErrorCategory {
	var te *TimelineError
	if errors.As(err, &te) {
		return te.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a TimelineError.
func GetCode(err error) string {
	var te *TimelineError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

func IsValidation(err error) bool   { return GetCategory(err) == ErrCategoryValidation }
func IsNotFound(err error) bool     { return GetCategory(err) == ErrCategoryNotFound }
func IsMalformedKey(err error) bool { return GetCategory(err) == ErrCategoryMalformedKey }
func IsNamespace(err error) bool    { return GetCategory(err) == ErrCategoryNamespace }
func IsStore(err error) bool        { return GetCategory(err) == ErrCategoryStore }

// Convenience constructors for common errors.

func NewValidationError(code, message string) *TimelineError {
	return New(ErrCategoryValidation, code, message)
}

func NewNotFoundError(message string) *TimelineError {
	return New(ErrCategoryNotFound, CodeEntryNotFound, message)
}

func NewMalformedKeyError(code, key, message string) *TimelineError {
	return New(ErrCategoryMalformedKey, code, message).WithDetails(map[string]interface{}{"key": key})
}

func NewNamespaceError(code, message string) *TimelineError {
	return New(ErrCategoryNamespace, code, message)
}

// NewStoreError wraps an executor failure with the operation and path it was issued for.
func NewStoreError(op, path string, cause error) *TimelineError {
	return Wrap(ErrCategoryStore, CodeExecuteFailed, fmt.Sprintf("%s on %s", op, path), cause).
		WithDetails(map[string]interface{}{"op": op, "path": path})
}

func NewDecodeError(message string, cause error) *TimelineError {
	return Wrap(ErrCategoryStore, CodeDecodeFailed, message, cause)
}

func NewInternalError(message string, cause error) *TimelineError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
