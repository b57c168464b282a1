package observability

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ScanStats tracks how often each scan scope and filter is used by list and
// search operations, so operators can see which partitions are hot.
type ScanStats struct {
	mu         sync.RWMutex
	scopeFreq  map[string]*UsageStats
	filterFreq map[string]*UsageStats
	window     time.Duration
	now        func() time.Time
}

// UsageStats holds the counters of one scope or filter.
type UsageStats struct {
	Name      string
	Frequency int64
	LastSeen  time.Time
	Ops       map[string]int // operation → count (e.g., "list" → 5)
}

// NewScanStats creates a tracker. Entries unseen for longer than window are
// dropped by Prune.
func NewScanStats(window time.Duration) *ScanStats {
	return &ScanStats{
		scopeFreq:  make(map[string]*UsageStats),
		filterFreq: make(map[string]*UsageStats),
		window:     window,
		now:        time.Now,
	}
}

// RecordScope records a scan of the given scope issued by op.
func (s *ScanStats) RecordScope(scope, op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch(s.scopeFreq, scope, op)
}

// RecordFilter records use of a client-side filter (e.g. "category").
func (s *ScanStats) RecordFilter(filter, op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch(s.filterFreq, filter, op)
}

func (s *ScanStats) touch(m map[string]*UsageStats, name, op string) {
	stats, ok := m[name]
	if !ok {
		stats = &UsageStats{Name: name, Ops: make(map[string]int)}
		m[name] = stats
	}
	stats.Frequency++
	stats.LastSeen = s.now()
	stats.Ops[op]++
}

// Observe records the scope of list and search events.
func (s *ScanStats) Observe(_ context.Context, ev Event) {
	if ev.Scope == "" || ev.Err != nil {
		return
	}
	if ev.Op == OpList || ev.Op == OpSearch || ev.Op == OpStats {
		s.RecordScope(ev.Scope, ev.Op)
		for _, f := range ev.Filters {
			s.RecordFilter(f, ev.Op)
		}
	}
}

// TopScopes returns copies of the n most used scopes, most frequent first.
func (s *ScanStats) TopScopes(n int) []UsageStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return top(s.scopeFreq, n)
}

// TopFilters returns copies of the n most used filters, most frequent first.
func (s *ScanStats) TopFilters(n int) []UsageStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return top(s.filterFreq, n)
}

func top(m map[string]*UsageStats, n int) []UsageStats {
	if n <= 0 || len(m) == 0 {
		return []UsageStats{}
	}

	stats := make([]UsageStats, 0, len(m))
	for _, u := range m {
		cp := UsageStats{
			Name:      u.Name,
			Frequency: u.Frequency,
			LastSeen:  u.LastSeen,
			Ops:       make(map[string]int, len(u.Ops)),
		}
		for op, count := range u.Ops {
			cp.Ops[op] = count
		}
		stats = append(stats, cp)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		return stats[i].Name < stats[j].Name
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Prune removes entries not seen within the window.
func (s *ScanStats) Prune() {
	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := s.now().Add(-s.window)
	for name, u := range s.scopeFreq {
		if u.LastSeen.Before(threshold) {
			delete(s.scopeFreq, name)
		}
	}
	for name, u := range s.filterFreq {
		if u.LastSeen.Before(threshold) {
			delete(s.filterFreq, name)
		}
	}
}
