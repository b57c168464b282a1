package timeline

import (
	"fmt"
	"time"

	tlerrors "github.com/arkilian/timeline/internal/errors"
	"github.com/arkilian/timeline/internal/partition"
	"github.com/arkilian/timeline/pkg/types"
)

// filter holds the client-side predicates shared by List, Stats and Search.
type filter struct {
	category types.Category
	status   types.Status
	rng      partition.Range
	from     time.Time
	to       time.Time
}

func (f filter) validate() error {
	if f.category != "" && !f.category.Valid() {
		return tlerrors.NewValidationError(tlerrors.CodeInvalidValue, fmt.Sprintf("unknown category %q", f.category))
	}
	if f.status != "" && !f.status.Valid() {
		return tlerrors.NewValidationError(tlerrors.CodeInvalidValue, fmt.Sprintf("unknown status %q", f.status))
	}
	if !f.from.IsZero() && !f.to.IsZero() && f.to.Before(f.from) {
		return tlerrors.NewValidationError(tlerrors.CodeInvalidValue, "date range ends before it starts")
	}
	return nil
}

// names lists the filters that are set.
func (f filter) names() []string {
	var names []string
	if f.category != "" {
		names = append(names, "category")
	}
	if f.status != "" {
		names = append(names, "status")
	}
	if !f.from.IsZero() || !f.to.IsZero() {
		names = append(names, "dateRange")
	}
	return names
}

func (f filter) match(e *types.Entry) bool {
	if f.category != "" && e.Category != f.category {
		return false
	}
	if f.status != "" && e.Status != f.status {
		return false
	}
	if !f.rng.Contains(e) {
		return false
	}
	if !f.from.IsZero() && e.CreatedAt.Before(f.from) {
		return false
	}
	if !f.to.IsZero() && e.CreatedAt.After(f.to) {
		return false
	}
	return true
}

func (f filter) apply(records []*located) []*types.Entry {
	out := make([]*types.Entry, 0, len(records))
	for _, r := range records {
		if f.match(r.entry) {
			out = append(out, r.entry)
		}
	}
	return out
}
