package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestTimelineError_Error(t *testing.T) {
	err := New(ErrCategoryValidation, CodeMissingField, "userEmail is required")
	expected := "[VALIDATION:MISSING_FIELD] userEmail is required"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestTimelineError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewStoreError("set", "db.ns.entries", cause)
	expected := "[STORE:EXECUTE_FAILED] set on db.ns.entries: connection refused"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestTimelineError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := NewStoreError("view", "db.ns.entries", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestTimelineError_Is(t *testing.T) {
	err1 := New(ErrCategoryMalformedKey, CodeTooFewSegments, "first")
	err2 := New(ErrCategoryMalformedKey, CodeTooFewSegments, "second")
	err3 := New(ErrCategoryMalformedKey, CodeBadSegment, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
	if !errors.Is(err3, ErrMalformedKey) {
		t.Error("category sentinel should match any code")
	}
	if errors.Is(err3, ErrNotFound) {
		t.Error("category sentinel of another category should not match")
	}
}

func TestCategoryPredicates(t *testing.T) {
	tests := []struct {
		err  error
		pred func(error) bool
	}{
		{NewValidationError(CodeInvalidValue, "bad"), IsValidation},
		{NewNotFoundError("missing"), IsNotFound},
		{NewMalformedKeyError(CodeTooFewSegments, "2024_01", "short"), IsMalformedKey},
		{NewNamespaceError(CodeEmptyEmail, "empty"), IsNamespace},
		{NewStoreError("set", "a.b.c", fmt.Errorf("x")), IsStore},
		{NewDecodeError("bad json", fmt.Errorf("x")), IsStore},
	}
	for _, tt := range tests {
		if !tt.pred(tt.err) {
			t.Errorf("predicate did not match %v", tt.err)
		}
		if !tt.pred(fmt.Errorf("wrapped: %w", tt.err)) {
			t.Errorf("predicate did not match wrapped %v", tt.err)
		}
	}
	if IsNotFound(fmt.Errorf("plain error")) {
		t.Error("plain error should not match any category")
	}
}

func TestGetCategory(t *testing.T) {
	err := NewNamespaceError(CodeIllegalNamespace, "bad chars")
	if GetCategory(err) != ErrCategoryNamespace {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategoryNamespace)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("non-TimelineError should return empty category")
	}
}

func TestGetCode(t *testing.T) {
	err := NewNotFoundError("entry abc not found")
	if GetCode(err) != CodeEntryNotFound {
		t.Errorf("got %q, want %q", GetCode(err), CodeEntryNotFound)
	}
	if GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("non-TimelineError should return empty code")
	}
}

func TestWithDetails(t *testing.T) {
	err := NewValidationError(CodeInvalidValue, "bad status")
	detailed := err.WithDetails(map[string]interface{}{"field": "status"})

	if detailed.Details["field"] != "status" {
		t.Error("WithDetails should set details")
	}
	if err.Details != nil {
		t.Error("WithDetails should not modify original")
	}
}

func TestStoreErrorDetails(t *testing.T) {
	err := NewStoreError("remove", "db.ns.entries.k", fmt.Errorf("boom"))
	if err.Details["op"] != "remove" || err.Details["path"] != "db.ns.entries.k" {
		t.Errorf("unexpected details: %v", err.Details)
	}
	mk := NewMalformedKeyError(CodeBadSegment, "2024_xx_01_id", "bad month")
	if mk.Details["key"] != "2024_xx_01_id" {
		t.Errorf("unexpected details: %v", mk.Details)
	}
}
