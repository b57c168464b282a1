// Package timeline implements a per-user activity timeline on top of an SNL
// key/value store.
//
// Entries are written with one set command each under a key chosen by the
// configured partition scheme. Reads use wildcard scans and apply every
// filter client-side. Search fetches a broad candidate set (a full scan
// unless the store pre-filters) and ranks it locally, so its cost grows with
// the size of a user's timeline.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arkilian/timeline/internal/aggregator"
	tlerrors "github.com/arkilian/timeline/internal/errors"
	"github.com/arkilian/timeline/internal/namespace"
	"github.com/arkilian/timeline/internal/observability"
	"github.com/arkilian/timeline/internal/partition"
	"github.com/arkilian/timeline/internal/ranking"
	"github.com/arkilian/timeline/internal/snl"
	"github.com/arkilian/timeline/pkg/types"
)

// Store records and queries timelines. It is safe for concurrent use and
// holds no mutable state besides the attached observer.
type Store struct {
	exec       snl.Executor
	database   string
	scheme     partition.Scheme
	codec      namespace.Codec
	credential string
	archiver   Archiver
	now        func() time.Time

	mu       sync.RWMutex
	observer observability.Observer
}

// New creates a Store on top of exec. Without options it uses the
// "timeline" database, the flat partition scheme and namespace.FromEmail.
func New(exec snl.Executor, opts ...Option) *Store {
	s := &Store{
		exec:     exec,
		database: DefaultDatabase,
		scheme:   &partition.Flat{},
		codec:    namespace.FromEmail,
		now:      time.Now,
		observer: observability.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.observer == nil {
		s.observer = observability.Nop{}
	}
	return s
}

// Scheme returns the partition scheme of the store.
func (s *Store) Scheme() partition.Scheme { return s.scheme }

// Close detaches the observer. The store remains usable.
func (s *Store) Close() error {
	s.mu.Lock()
	s.observer = observability.Nop{}
	s.mu.Unlock()
	return nil
}

func (s *Store) observe(ctx context.Context, start time.Time, ev observability.Event) {
	ev.Duration = time.Since(start)
	s.mu.RLock()
	o := s.observer
	s.mu.RUnlock()
	o.Observe(ctx, ev)
}

// Add validates e and writes it with a single set command. It returns e
// unchanged. No command is issued when validation fails.
func (s *Store) Add(ctx context.Context, e *types.Entry) (_ *types.Entry, err error) {
	start := time.Now()
	ev := observability.Event{Op: observability.OpAdd, Entry: e}
	defer func() { ev.Err = err; s.observe(ctx, start, ev) }()

	if err := ValidateEntry(e); err != nil {
		return nil, err
	}
	ns, err := s.codec(e.UserEmail)
	if err != nil {
		return nil, err
	}
	loc := s.scheme.Locate(e)
	ev.Namespace, ev.Entity, ev.Key = ns, loc.Entity, loc.Key

	if _, err := s.execute(ctx, snl.OpSet, snl.Pair{Key: loc.Key, Payload: e}, s.path(ns, loc.Entity)); err != nil {
		return nil, err
	}
	ev.Count = 1
	return e, nil
}

// Get returns the entry with exactly the given id, or nil.
func (s *Store) Get(ctx context.Context, email, id string) (_ *types.Entry, err error) {
	start := time.Now()
	ev := observability.Event{Op: observability.OpGet}
	defer func() { ev.Err = err; s.observe(ctx, start, ev) }()

	ns, err := s.codec(email)
	if err != nil {
		return nil, err
	}
	ev.Namespace = ns

	found, err := s.find(ctx, ns, id)
	if err != nil || found == nil {
		return nil, err
	}
	ev.Entity, ev.Key, ev.Count = found.loc.Entity, found.loc.Key, 1
	return found.entry, nil
}

// located is an entry together with the location it was read from.
type located struct {
	entry *types.Entry
	loc   partition.Location
}

// find looks an id up with the scheme's lookup scan and keeps only records
// whose key decodes to exactly id.
func (s *Store) find(ctx context.Context, ns, id string) (*located, error) {
	if id == "" {
		return nil, tlerrors.NewValidationError(tlerrors.CodeMissingField, "id is required")
	}
	if strings.Contains(id, snl.Wildcard) {
		return nil, tlerrors.NewValidationError(tlerrors.CodeInvalidValue,
			fmt.Sprintf("id %q must not contain %q", id, snl.Wildcard))
	}
	records, err := s.scan(ctx, ns, []partition.Scan{s.scheme.Lookup(id)})
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		keyID, err := s.scheme.IDOf(r.loc.Key)
		if err != nil {
			return nil, err
		}
		if keyID == id && r.entry.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

// List returns entries in the narrowest scan covering the options' calendar
// fields, filtered, sorted newest first and paginated.
func (s *Store) List(ctx context.Context, email string, opts ListOptions) (_ []*types.Entry, err error) {
	start := time.Now()
	ev := observability.Event{Op: observability.OpList}
	defer func() { ev.Err = err; s.observe(ctx, start, ev) }()

	page, limit, err := pagination(opts.Page, opts.Limit)
	if err != nil {
		return nil, err
	}
	entries, err := s.collect(ctx, email, opts, &ev)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(entries)
	entries = paginate(entries, page, limit)
	ev.Count = len(entries)
	return entries, nil
}

// Stats summarizes every entry matching the options, ignoring pagination.
func (s *Store) Stats(ctx context.Context, email string, opts ListOptions) (_ aggregator.Summary, err error) {
	start := time.Now()
	ev := observability.Event{Op: observability.OpStats}
	defer func() { ev.Err = err; s.observe(ctx, start, ev) }()

	entries, err := s.collect(ctx, email, opts, &ev)
	if err != nil {
		return aggregator.Summary{}, err
	}
	ev.Count = len(entries)
	return aggregator.Summarize(entries), nil
}

// collect fetches and filters the entries selected by opts.
func (s *Store) collect(ctx context.Context, email string, opts ListOptions, ev *observability.Event) ([]*types.Entry, error) {
	r := opts.Range()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	f := filter{category: opts.Category, status: opts.Status, rng: r}
	if err := f.validate(); err != nil {
		return nil, err
	}
	ns, err := s.codec(email)
	if err != nil {
		return nil, err
	}
	ev.Namespace, ev.Scope, ev.Filters = ns, string(r.Scope()), f.names()

	records, err := s.scan(ctx, ns, s.scheme.ScansFor(r))
	if err != nil {
		return nil, err
	}
	return f.apply(records), nil
}

// Search ranks the user's entries by relevance to term, most relevant first
// and newest first on ties, then paginates. Entries that do not match the
// term are kept with score zero.
func (s *Store) Search(ctx context.Context, email, term string, opts SearchOptions) (_ []*types.Entry, err error) {
	start := time.Now()
	ev := observability.Event{Op: observability.OpSearch, Scope: string(partition.ScopeAll)}
	defer func() { ev.Err = err; s.observe(ctx, start, ev) }()

	page, limit, err := pagination(opts.Page, opts.Limit)
	if err != nil {
		return nil, err
	}
	f := filter{category: opts.Category, status: opts.Status, from: opts.From, to: opts.To}
	if err := f.validate(); err != nil {
		return nil, err
	}
	ns, err := s.codec(email)
	if err != nil {
		return nil, err
	}
	ev.Namespace, ev.Filters = ns, f.names()

	var records []*located
	if opts.ServerSide && term != "" {
		records, err = s.searchScan(ctx, ns, term)
	} else {
		records, err = s.scan(ctx, ns, s.scheme.ScansFor(partition.Range{}))
	}
	if err != nil {
		return nil, err
	}

	ranked := ranking.Entries(ranking.Rank(f.apply(records), term))
	ranked = paginate(ranked, page, limit)
	ev.Count = len(ranked)
	return ranked, nil
}

// Remove deletes the entry with the given id by its computed key.
func (s *Store) Remove(ctx context.Context, email, id string) (_ bool, err error) {
	start := time.Now()
	ev := observability.Event{Op: observability.OpRemove}
	defer func() { ev.Err = err; s.observe(ctx, start, ev) }()

	ns, err := s.codec(email)
	if err != nil {
		return false, err
	}
	ev.Namespace = ns

	found, err := s.find(ctx, ns, id)
	if err != nil {
		return false, err
	}
	if found == nil {
		return false, tlerrors.NewNotFoundError(fmt.Sprintf("entry %q not found", id))
	}
	loc := s.scheme.Locate(found.entry)
	ev.Entity, ev.Key, ev.Entry = loc.Entity, loc.Key, found.entry

	if err := s.remove(ctx, ns, loc); err != nil {
		return false, err
	}
	ev.Count = 1
	return true, nil
}

// remove deletes exactly one key. A key carrying a wildcard would be read as
// a pattern by the store, so it is refused.
func (s *Store) remove(ctx context.Context, ns string, loc partition.Location) error {
	if strings.Contains(loc.Key, snl.Wildcard) {
		return tlerrors.NewValidationError(tlerrors.CodeInvalidValue,
			fmt.Sprintf("key %q is not a single key", loc.Key))
	}
	_, err := s.execute(ctx, snl.OpRemove, snl.Key(loc.Key), s.path(ns, loc.Entity))
	if errors.Is(err, snl.ErrNotFound) {
		return tlerrors.NewNotFoundError(fmt.Sprintf("key %q not found", loc.Key))
	}
	return err
}

// Update overwrites an existing entry at its computed key. The entry must
// exist and keep its createdAt.
func (s *Store) Update(ctx context.Context, e *types.Entry) (_ *types.Entry, err error) {
	start := time.Now()
	ev := observability.Event{Op: observability.OpUpdate, Entry: e}
	defer func() { ev.Err = err; s.observe(ctx, start, ev) }()

	if err := ValidateEntry(e); err != nil {
		return nil, err
	}
	ns, err := s.codec(e.UserEmail)
	if err != nil {
		return nil, err
	}
	ev.Namespace = ns

	found, err := s.find(ctx, ns, e.ID)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, tlerrors.NewNotFoundError(fmt.Sprintf("entry %q not found", e.ID))
	}
	if !found.entry.CreatedAt.Equal(e.CreatedAt) {
		return nil, tlerrors.NewValidationError(tlerrors.CodeImmutable,
			fmt.Sprintf("createdAt of entry %q cannot change", e.ID))
	}

	loc := s.scheme.Locate(e)
	ev.Entity, ev.Key = loc.Entity, loc.Key
	if _, err := s.execute(ctx, snl.OpSet, snl.Pair{Key: loc.Key, Payload: e}, s.path(ns, loc.Entity)); err != nil {
		return nil, err
	}
	ev.Count = 1
	return e, nil
}

// Tag adds tags to an entry with a tag command and returns the entry with
// the tags merged.
func (s *Store) Tag(ctx context.Context, email, id string, tags ...string) (*types.Entry, error) {
	return s.retag(ctx, snl.OpTag, email, id, tags)
}

// Untag removes tags from an entry with an untag command and returns the
// entry without them.
func (s *Store) Untag(ctx context.Context, email, id string, tags ...string) (*types.Entry, error) {
	return s.retag(ctx, snl.OpUntag, email, id, tags)
}

func (s *Store) retag(ctx context.Context, op snl.Operation, email, id string, tags []string) (_ *types.Entry, err error) {
	start := time.Now()
	ev := observability.Event{Op: string(op)}
	defer func() { ev.Err = err; s.observe(ctx, start, ev) }()

	tags = types.UniqueTags(tags)
	if len(tags) == 0 {
		return nil, tlerrors.NewValidationError(tlerrors.CodeMissingField, "at least one non-empty tag is required")
	}
	ns, err := s.codec(email)
	if err != nil {
		return nil, err
	}
	ev.Namespace = ns

	found, err := s.find(ctx, ns, id)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, tlerrors.NewNotFoundError(fmt.Sprintf("entry %q not found", id))
	}
	loc := s.scheme.Locate(found.entry)
	ev.Entity, ev.Key = loc.Entity, loc.Key

	if _, err := s.execute(ctx, op, snl.Pair{Key: loc.Key, Payload: tags}, s.path(ns, loc.Entity)); err != nil {
		return nil, err
	}

	updated := found.entry.Clone()
	if op == snl.OpTag {
		updated.Tags = types.UniqueTags(append(updated.Tags, tags...))
	} else {
		updated.Tags = withoutTags(updated.Tags, tags)
	}
	ev.Entry, ev.Count = updated, 1
	return updated, nil
}

func withoutTags(tags, drop []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		keep := true
		for _, d := range drop {
			if t == d {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, t)
		}
	}
	return out
}

func (s *Store) path(ns, entity string) snl.Path {
	return snl.Path{Database: s.database, Namespace: ns, Entity: entity}
}

// execute builds a command and runs it. Executor failures are wrapped in a
// StoreError naming the operation and path.
func (s *Store) execute(ctx context.Context, op snl.Operation, values snl.Values, path snl.Path) (snl.Response, error) {
	cmd, err := snl.Build(op, snl.KindStructure, values, path)
	if err != nil {
		return nil, err
	}
	resp, err := s.exec.Execute(ctx, cmd, s.credential)
	if err != nil {
		return nil, tlerrors.NewStoreError(string(op), path.String(), err)
	}
	return resp, nil
}

// scan runs the given scans and decodes every record. Entities that do not
// exist contribute nothing.
func (s *Store) scan(ctx context.Context, ns string, scans []partition.Scan) ([]*located, error) {
	var out []*located
	for _, sc := range scans {
		entities := []string{sc.Entity}
		if sc.Entity == "" {
			var err error
			if entities, err = s.entities(ctx, ns); err != nil {
				return nil, err
			}
		}
		for _, entity := range entities {
			var values snl.Values
			if sc.Pattern != "" {
				values = snl.Key(sc.Pattern)
			}
			resp, err := s.execute(ctx, snl.OpView, values, s.path(ns, entity))
			if errors.Is(err, snl.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			records, err := s.decode(entity, resp)
			if err != nil {
				return nil, err
			}
			out = append(out, records...)
		}
	}
	return out, nil
}

// searchScan asks the store for records containing term in every entity the
// scheme covers.
func (s *Store) searchScan(ctx context.Context, ns, term string) ([]*located, error) {
	var entities []string
	for _, sc := range s.scheme.ScansFor(partition.Range{}) {
		if sc.Entity != "" {
			entities = append(entities, sc.Entity)
			continue
		}
		owned, err := s.entities(ctx, ns)
		if err != nil {
			return nil, err
		}
		entities = append(entities, owned...)
	}

	var out []*located
	for _, entity := range entities {
		resp, err := s.execute(ctx, snl.OpSearch, snl.Key(term), s.path(ns, entity))
		if errors.Is(err, snl.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		records, err := s.decode(entity, resp)
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	return out, nil
}

// entities lists the namespace's entities that belong to the scheme.
func (s *Store) entities(ctx context.Context, ns string) ([]string, error) {
	resp, err := s.execute(ctx, snl.OpList, nil, snl.Path{Database: s.database, Namespace: ns})
	if errors.Is(err, snl.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var owned []string
	for _, name := range snl.DecodeKeys(resp) {
		if s.scheme.OwnsEntity(name) {
			owned = append(owned, name)
		}
	}
	return owned, nil
}

func (s *Store) decode(entity string, resp snl.Response) ([]*located, error) {
	records, err := snl.DecodeRecords[types.Entry](resp)
	if err != nil {
		return nil, err
	}
	out := make([]*located, 0, len(records))
	for i := range records {
		e := records[i].Value
		if e.ID == records[i].Key {
			// payload without an id: recover it from the key
			id, err := s.scheme.IDOf(records[i].Key)
			if err != nil {
				return nil, err
			}
			e.ID = id
		}
		out = append(out, &located{entry: &e, loc: partition.Location{Entity: entity, Key: records[i].Key}})
	}
	return out, nil
}

func sortNewestFirst(entries []*types.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}

func pagination(page, limit int) (int, int, error) {
	if page < 0 || limit < 0 {
		return 0, 0, tlerrors.NewValidationError(tlerrors.CodeInvalidValue,
			fmt.Sprintf("page and limit must be positive, got page=%d limit=%d", page, limit))
	}
	if page == 0 {
		page = DefaultPage
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	return page, limit, nil
}

// paginate returns items (page-1)*limit up to page*limit.
func paginate(entries []*types.Entry, page, limit int) []*types.Entry {
	start := (page - 1) * limit
	if start >= len(entries) {
		return []*types.Entry{}
	}
	end := start + limit
	if end > len(entries) {
		end = len(entries)
	}
	return entries[start:end]
}
