package partition

import (
	"fmt"

	tlerrors "github.com/arkilian/timeline/internal/errors"
	"github.com/arkilian/timeline/pkg/types"
)

// Scope is the width of a range scan.
type Scope string

const (
	ScopeDay   Scope = "day"
	ScopeMonth Scope = "month"
	ScopeYear  Scope = "year"
	ScopeAll   Scope = "all"
)

// Range selects entries by calendar fields. Zero means unset.
type Range struct {
	Year  int
	Month int
	Day   int
}

// Scope returns the narrowest scan the set fields allow: day needs all
// three fields, month needs year and month, year needs year.
func (r Range) Scope() Scope {
	switch {
	case r.Year > 0 && r.Month > 0 && r.Day > 0:
		return ScopeDay
	case r.Year > 0 && r.Month > 0:
		return ScopeMonth
	case r.Year > 0:
		return ScopeYear
	default:
		return ScopeAll
	}
}

// Validate rejects negative or out-of-range fields.
func (r Range) Validate() error {
	if r.Year < 0 || r.Year > 9999 {
		return tlerrors.NewValidationError(tlerrors.CodeInvalidValue, fmt.Sprintf("year %d out of range", r.Year))
	}
	if r.Month < 0 || r.Month > 12 {
		return tlerrors.NewValidationError(tlerrors.CodeInvalidValue, fmt.Sprintf("month %d out of range", r.Month))
	}
	if r.Day < 0 || r.Day > 31 {
		return tlerrors.NewValidationError(tlerrors.CodeInvalidValue, fmt.Sprintf("day %d out of range", r.Day))
	}
	return nil
}

// Contains reports whether every set field matches the entry's temporal
// fields. Fields that do not narrow the scan are still applied here.
func (r Range) Contains(e *types.Entry) bool {
	if r.Year > 0 && e.Year != r.Year {
		return false
	}
	if r.Month > 0 && e.Month != r.Month {
		return false
	}
	if r.Day > 0 && e.Day != r.Day {
		return false
	}
	return true
}
