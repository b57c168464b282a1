// Package aggregator reduces a set of timeline entries into summary
// statistics.
package aggregator

import (
	"fmt"
	"math"

	"github.com/arkilian/timeline/pkg/types"
)

// DayPeak is the day with the most entries.
type DayPeak struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// HourPeak is the hour of day with the most entries.
type HourPeak struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// Summary holds counts, rates and peaks over a collection of entries.
type Summary struct {
	Total      int                    `json:"total"`
	ByCategory map[types.Category]int `json:"byCategory"`
	ByStatus   map[types.Status]int   `json:"byStatus"`
	// ByMonth is keyed by YYYY-MM, ByDay by YYYY-MM-DD.
	ByMonth map[string]int `json:"byMonth"`
	ByDay   map[string]int `json:"byDay"`
	ByHour  map[int]int    `json:"byHour"`

	TotalDuration   int64   `json:"totalDuration"`
	AverageDuration float64 `json:"averageDuration"`
	// SuccessRate is the rounded percentage of entries with status success.
	SuccessRate int `json:"successRate"`

	MostActiveDay  *DayPeak  `json:"mostActiveDay"`
	MostActiveHour *HourPeak `json:"mostActiveHour"`
}

// MonthKey formats a YYYY-MM bucket key.
func MonthKey(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

// DayKey formats a YYYY-MM-DD bucket key.
func DayKey(year, month, day int) string {
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

// Summarize computes the summary of entries. Buckets use the entries'
// stored temporal fields. On equal counts the day or hour seen first in
// entries wins.
func Summarize(entries []*types.Entry) Summary {
	s := Summary{
		Total:      len(entries),
		ByCategory: make(map[types.Category]int),
		ByStatus:   make(map[types.Status]int),
		ByMonth:    make(map[string]int),
		ByDay:      make(map[string]int),
		ByHour:     make(map[int]int),
	}

	var dayOrder []string
	var hourOrder []int
	successes := 0

	for _, e := range entries {
		s.ByCategory[e.Category]++
		s.ByStatus[e.Status]++
		s.ByMonth[MonthKey(e.Year, e.Month)]++

		day := DayKey(e.Year, e.Month, e.Day)
		if s.ByDay[day] == 0 {
			dayOrder = append(dayOrder, day)
		}
		s.ByDay[day]++

		if _, seen := s.ByHour[e.Hour]; !seen {
			hourOrder = append(hourOrder, e.Hour)
		}
		s.ByHour[e.Hour]++

		s.TotalDuration += e.Duration
		if e.Status == types.StatusSuccess {
			successes++
		}
	}

	if s.Total == 0 {
		return s
	}

	s.AverageDuration = float64(s.TotalDuration) / float64(s.Total)
	s.SuccessRate = int(math.Round(float64(successes) * 100 / float64(s.Total)))

	for _, day := range dayOrder {
		if s.MostActiveDay == nil || s.ByDay[day] > s.MostActiveDay.Count {
			s.MostActiveDay = &DayPeak{Day: day, Count: s.ByDay[day]}
		}
	}
	for _, hour := range hourOrder {
		if s.MostActiveHour == nil || s.ByHour[hour] > s.MostActiveHour.Count {
			s.MostActiveHour = &HourPeak{Hour: hour, Count: s.ByHour[hour]}
		}
	}
	return s
}
