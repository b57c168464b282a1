package types

import (
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestNewEntryID(t *testing.T) {
	ts := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	id := NewEntryID(ts)

	if len(id) != IDLength {
		t.Fatalf("expected length %d, got %d", IDLength, len(id))
	}
	if strings.Contains(id, "_") {
		t.Errorf("id %q must not contain the key separator", id)
	}
	got, err := IDTime(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(ts) {
		t.Errorf("IDTime = %v, want %v", got, ts)
	}
}

func TestIDTime_Errors(t *testing.T) {
	if _, err := IDTime("short"); err != ErrInvalidIDLength {
		t.Errorf("expected ErrInvalidIDLength, got %v", err)
	}
	if _, err := IDTime("0000000000000000000000000U"); err != nil {
		t.Errorf("random part is not decoded, got %v", err)
	}
	if _, err := IDTime("U0000000000000000000000000"); err != ErrInvalidIDCharacter {
		t.Errorf("expected ErrInvalidIDCharacter, got %v", err)
	}
}

func TestIDTime_CaseInsensitive(t *testing.T) {
	id := NewEntryID(time.UnixMilli(1700000000000))
	lower, err := IDTime(strings.ToLower(id))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lower.UnixMilli() != 1700000000000 {
		t.Errorf("got %d", lower.UnixMilli())
	}
}

// Feature: entry-id-ordering
// IDs sort by creation time and increase within a millisecond.
func TestProperty_IDOrdering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("IDs generated at later times sort after earlier ones", prop.ForAll(
		func(t1Ms, t2Ms int64) bool {
			if t1Ms >= t2Ms {
				t1Ms, t2Ms = t2Ms, t1Ms+1
			}
			g := NewIDGenerator()
			a, err := g.Next(time.UnixMilli(t1Ms))
			if err != nil {
				return false
			}
			b, err := g.Next(time.UnixMilli(t2Ms))
			if err != nil {
				return false
			}
			return a < b
		},
		gen.Int64Range(1000000000000, 2000000000000),
		gen.Int64Range(1000000000000, 2000000000000),
	))

	properties.Property("IDs within the same millisecond are strictly increasing", prop.ForAll(
		func(ms int64, count int) bool {
			g := NewIDGenerator()
			ts := time.UnixMilli(ms)
			prev := ""
			for i := 0; i < count; i++ {
				cur, err := g.Next(ts)
				if err != nil || cur <= prev {
					return false
				}
				prev = cur
			}
			return true
		},
		gen.Int64Range(1000000000000, 2000000000000),
		gen.IntRange(2, 100),
	))

	properties.Property("IDTime recovers the generation millisecond", prop.ForAll(
		func(ms int64) bool {
			id, err := NewIDGenerator().Next(time.UnixMilli(ms))
			if err != nil {
				return false
			}
			got, err := IDTime(id)
			return err == nil && got.UnixMilli() == ms
		},
		gen.Int64Range(0, 281474976710655),
	))

	properties.TestingRun(t)
}
