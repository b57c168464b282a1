package timeline

import (
	"fmt"
	"strings"

	tlerrors "github.com/arkilian/timeline/internal/errors"
	"github.com/arkilian/timeline/internal/snl"
	"github.com/arkilian/timeline/pkg/types"
)

// FieldError describes one violated field constraint.
type FieldError struct {
	Field   string
	Message string
	missing bool
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Message)
}

// FieldErrors is a collection of field errors.
type FieldErrors []*FieldError

func (e FieldErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// CheckEntry returns every field constraint e violates.
func CheckEntry(e *types.Entry) FieldErrors {
	if e == nil {
		return FieldErrors{{Field: "entry", Message: "entry is required", missing: true}}
	}

	var errs FieldErrors
	required := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, &FieldError{Field: field, Message: field + " is required and cannot be empty", missing: true})
		}
	}
	invalid := func(field, format string, args ...interface{}) {
		errs = append(errs, &FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	required("id", e.ID)
	if strings.Contains(e.ID, snl.Wildcard) {
		invalid("id", "id must not contain %q", snl.Wildcard)
	}
	required("userId", e.UserID)
	required("userEmail", e.UserEmail)
	required("aiName", e.AIName)

	if !e.Category.Valid() {
		invalid("category", "unknown category %q", e.Category)
	}
	if !e.Status.Valid() {
		invalid("status", "unknown status %q", e.Status)
	}
	if e.ErrorMessage != nil && e.Status != types.StatusError {
		invalid("errorMessage", "errorMessage is only allowed when status is %q", types.StatusError)
	}
	if e.Duration < 0 {
		invalid("duration", "duration must be >= 0, got %d", e.Duration)
	}

	seen := make(map[string]struct{}, len(e.Tags))
	for _, tag := range e.Tags {
		if tag == "" {
			invalid("tags", "tags must not be empty strings")
			continue
		}
		if _, dup := seen[tag]; dup {
			invalid("tags", "duplicate tag %q", tag)
		}
		seen[tag] = struct{}{}
	}

	if e.CreatedAt.IsZero() {
		errs = append(errs, &FieldError{Field: "createdAt", Message: "createdAt is required", missing: true})
	} else {
		c := e.CreatedAt.UTC()
		if e.Year != c.Year() || e.Month != int(c.Month()) || e.Day != c.Day() ||
			e.Hour != c.Hour() || e.Minute != c.Minute() {
			invalid("createdAt", "temporal fields do not match createdAt %s", c.Format("2006-01-02T15:04Z"))
		}
	}
	return errs
}

// ValidateEntry returns a ValidationError listing every violated constraint,
// or nil. The code is MISSING_FIELD when any required field is absent.
func ValidateEntry(e *types.Entry) error {
	errs := CheckEntry(e)
	if len(errs) == 0 {
		return nil
	}
	code := tlerrors.CodeInvalidValue
	fields := make([]string, 0, len(errs))
	for _, fe := range errs {
		if fe.missing {
			code = tlerrors.CodeMissingField
		}
		fields = append(fields, fe.Field)
	}
	return tlerrors.NewValidationError(code, errs.Error()).
		WithDetails(map[string]interface{}{"fields": fields})
}
