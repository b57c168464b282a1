// Package ranking orders search results by relevance to a free-text term.
package ranking

import (
	"sort"
	"strings"

	"github.com/arkilian/timeline/pkg/types"
)

// Field weights. Each field counts at most once per entry.
const (
	WeightAction        = 3
	WeightInputSummary  = 2
	WeightOutputSummary = 2
	WeightTag           = 2
	WeightCategory      = 1
	WeightErrorMessage  = 1
)

// Score returns the relevance of e to term: the sum of the weights of the
// fields that contain term, case-insensitively. A blank term matches
// nothing and scores zero.
func Score(e *types.Entry, term string) int {
	if strings.TrimSpace(term) == "" {
		return 0
	}
	needle := strings.ToLower(term)
	contains := func(s string) bool {
		return s != "" && strings.Contains(strings.ToLower(s), needle)
	}

	score := 0
	if contains(e.Action) {
		score += WeightAction
	}
	if contains(e.InputSummary) {
		score += WeightInputSummary
	}
	if contains(e.OutputSummary) {
		score += WeightOutputSummary
	}
	for _, tag := range e.Tags {
		if contains(tag) {
			score += WeightTag
			break
		}
	}
	if contains(string(e.Category)) {
		score += WeightCategory
	}
	if e.ErrorMessage != nil && contains(*e.ErrorMessage) {
		score += WeightErrorMessage
	}
	return score
}

// Scored pairs an entry with its score.
type Scored struct {
	Entry *types.Entry
	Score int
}

// Rank scores every entry and sorts by score descending, newest first on
// ties. Zero-score entries are kept, so a blank term orders by recency
// alone. The input slice is not modified.
func Rank(entries []*types.Entry, term string) []Scored {
	scored := make([]Scored, len(entries))
	for i, e := range entries {
		scored[i] = Scored{Entry: e, Score: Score(e, term)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Entry.CreatedAt.After(scored[j].Entry.CreatedAt)
	})
	return scored
}

// Entries unwraps ranked results.
func Entries(scored []Scored) []*types.Entry {
	out := make([]*types.Entry, len(scored))
	for i, s := range scored {
		out[i] = s.Entry
	}
	return out
}
