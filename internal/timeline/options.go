package timeline

import (
	"context"
	"time"

	"github.com/arkilian/timeline/internal/namespace"
	"github.com/arkilian/timeline/internal/observability"
	"github.com/arkilian/timeline/internal/partition"
	"github.com/arkilian/timeline/pkg/types"
)

// DefaultDatabase is the database segment used when none is configured.
const DefaultDatabase = "timeline"

// Pagination defaults.
const (
	DefaultPage  = 1
	DefaultLimit = 50
)

// Archiver persists entries before they are purged. It returns the location
// of the written archive.
type Archiver interface {
	Archive(ctx context.Context, namespace string, entries []*types.Entry) (string, error)
}

// Option configures a Store.
type Option func(*Store)

// WithDatabase sets the database path segment.
func WithDatabase(db string) Option {
	return func(s *Store) { s.database = db }
}

// WithScheme sets the partition scheme used for every read and write.
func WithScheme(scheme partition.Scheme) Option {
	return func(s *Store) { s.scheme = scheme }
}

// WithCodec sets the email to namespace codec.
func WithCodec(codec namespace.Codec) Option {
	return func(s *Store) { s.codec = codec }
}

// WithCredential sets the credential passed to the executor on every call.
func WithCredential(credential string) Option {
	return func(s *Store) { s.credential = credential }
}

// WithObserver attaches an observer until Close.
func WithObserver(o observability.Observer) Option {
	return func(s *Store) { s.observer = o }
}

// WithArchiver archives purge candidates before they are deleted.
func WithArchiver(a Archiver) Option {
	return func(s *Store) { s.archiver = a }
}

// WithClock overrides the time source used for retention cutoffs.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// ListOptions filters and paginates List and Stats.
type ListOptions struct {
	Year     int
	Month    int
	Day      int
	Category types.Category
	Status   types.Status
	// Page is 1-based. Zero selects DefaultPage.
	Page int
	// Limit is the page size. Zero selects DefaultLimit.
	Limit int
}

// Range returns the calendar range of the options.
func (o ListOptions) Range() partition.Range {
	return partition.Range{Year: o.Year, Month: o.Month, Day: o.Day}
}

// SearchOptions filters and paginates Search.
type SearchOptions struct {
	Category types.Category
	Status   types.Status
	// From and To bound createdAt inclusively. Zero values are open.
	From  time.Time
	To    time.Time
	Page  int
	Limit int
	// ServerSide asks the store to pre-filter candidates with a search
	// command instead of a full scan.
	ServerSide bool
}
