// Package partition maps timeline entries onto entities and keys of the
// store and turns calendar ranges into wildcard scans.
package partition

import (
	"fmt"
	"time"

	"github.com/arkilian/timeline/internal/snl"
	"github.com/arkilian/timeline/pkg/types"
)

// Strategy selects a partition layout.
type Strategy string

const (
	// StrategyFlat stores every entry of a user in one entity under a
	// date-prefixed key.
	StrategyFlat Strategy = "flat"
	// StrategyBucketed stores entries in one entity per calendar month,
	// keyed by bare id.
	StrategyBucketed Strategy = "bucketed"
)

// FlatEntity is the single entity used by the flat layout.
const FlatEntity = "entries"

// bucketLayout is the time layout of bucketed entity names.
const bucketLayout = "2006-01"

// Config configures a Scheme.
type Config struct {
	Strategy Strategy
	// IncludeTime inserts an HHMM segment into flat keys.
	IncludeTime bool
}

// Location is where an entry is stored.
type Location struct {
	Entity string
	Key    string
}

// Scan is one view command needed to answer a range query.
type Scan struct {
	// Entity to view. Empty means "every entity the scheme owns",
	// enumerated with a list on the namespace.
	Entity string
	// Pattern restricts keys. Empty views the whole entity.
	Pattern string
}

// Scheme is a partition layout. A store uses exactly one Scheme for both
// reads and writes.
type Scheme interface {
	Strategy() Strategy
	// Locate returns the entity and key an entry is stored under.
	Locate(e *types.Entry) Location
	// ScansFor returns the narrowest scans covering r.
	ScansFor(r Range) []Scan
	// Lookup returns the scan that finds an entry by id. Matches still need
	// an exact id comparison.
	Lookup(id string) Scan
	// OwnsEntity reports whether an entity name belongs to this layout.
	OwnsEntity(name string) bool
	// IDOf extracts the entry id from a key of this layout.
	IDOf(key string) (string, error)
}

// NewScheme creates the scheme named by cfg.Strategy. An empty strategy
// selects the flat layout.
func NewScheme(cfg Config) (Scheme, error) {
	switch cfg.Strategy {
	case StrategyFlat, "":
		return &Flat{IncludeTime: cfg.IncludeTime}, nil
	case StrategyBucketed:
		return &Bucketed{}, nil
	default:
		return nil, fmt.Errorf("partition: unsupported strategy %q", cfg.Strategy)
	}
}

// Flat is the YYYY_MM_DD[_HHMM]_<id> layout under one entity.
type Flat struct {
	IncludeTime bool
}

func (f *Flat) Strategy() Strategy { return StrategyFlat }

// Key returns the flat key of e.
func (f *Flat) Key(e *types.Entry) string {
	return EncodeKey(KeyParts{
		Year:    e.Year,
		Month:   e.Month,
		Day:     e.Day,
		Hour:    e.Hour,
		Minute:  e.Minute,
		HasTime: f.IncludeTime,
		ID:      e.ID,
	})
}

func (f *Flat) Locate(e *types.Entry) Location {
	return Location{Entity: FlatEntity, Key: f.Key(e)}
}

func (f *Flat) ScansFor(r Range) []Scan {
	var pattern string
	switch r.Scope() {
	case ScopeDay:
		pattern = fmt.Sprintf("%04d_%02d_%02d_%s", r.Year, r.Month, r.Day, snl.Wildcard)
	case ScopeMonth:
		pattern = fmt.Sprintf("%04d_%02d_%s", r.Year, r.Month, snl.Wildcard)
	case ScopeYear:
		pattern = fmt.Sprintf("%04d_%s", r.Year, snl.Wildcard)
	}
	return []Scan{{Entity: FlatEntity, Pattern: pattern}}
}

func (f *Flat) Lookup(id string) Scan {
	return Scan{Entity: FlatEntity, Pattern: snl.Wildcard + KeySeparator + id}
}

func (f *Flat) OwnsEntity(name string) bool { return name == FlatEntity }

func (f *Flat) IDOf(key string) (string, error) {
	parts, err := DecodeKey(key, f.IncludeTime)
	if err != nil {
		return "", err
	}
	return parts.ID, nil
}

// Bucketed is the one-entity-per-month layout. Day ranges view the month
// bucket and rely on client-side filtering; year ranges view all twelve
// month buckets, some of which may not exist.
type Bucketed struct{}

func (b *Bucketed) Strategy() Strategy { return StrategyBucketed }

// Bucket returns the entity name for a year and month.
func Bucket(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

func (b *Bucketed) Locate(e *types.Entry) Location {
	return Location{Entity: Bucket(e.Year, e.Month), Key: e.ID}
}

func (b *Bucketed) ScansFor(r Range) []Scan {
	switch r.Scope() {
	case ScopeDay, ScopeMonth:
		return []Scan{{Entity: Bucket(r.Year, r.Month)}}
	case ScopeYear:
		scans := make([]Scan, 0, 12)
		for m := 1; m <= 12; m++ {
			scans = append(scans, Scan{Entity: Bucket(r.Year, m)})
		}
		return scans
	default:
		return []Scan{{}}
	}
}

func (b *Bucketed) Lookup(id string) Scan {
	return Scan{Pattern: id}
}

func (b *Bucketed) OwnsEntity(name string) bool {
	if len(name) != len(bucketLayout) {
		return false
	}
	_, err := time.Parse(bucketLayout, name)
	return err == nil
}

func (b *Bucketed) IDOf(key string) (string, error) { return key, nil }
