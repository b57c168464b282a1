package timeline

import (
	"context"
	"fmt"
	"time"

	tlerrors "github.com/arkilian/timeline/internal/errors"
	"github.com/arkilian/timeline/internal/observability"
	"github.com/arkilian/timeline/internal/partition"
	"github.com/arkilian/timeline/pkg/types"
)

// PurgeResult holds the outcome of a purge run.
type PurgeResult struct {
	// Deleted lists the ids whose removal was confirmed.
	Deleted []string
	// Failed lists the ids whose removal failed and was skipped.
	Failed []string
	// Exempt counts expired entries kept because they are system generated.
	Exempt int
	// Archive is the location of the archive written before deletion.
	Archive string
}

// PurgeOlderThan deletes every entry created before now-retention that is
// not system generated and returns the number of confirmed deletions.
func (s *Store) PurgeOlderThan(ctx context.Context, email string, retention time.Duration) (int, error) {
	result, err := s.PurgeOlderThanWithResult(ctx, email, retention)
	if result == nil {
		return 0, err
	}
	return len(result.Deleted), err
}

// PurgeOlderThanWithResult performs a purge and returns detailed results.
// Deletions are issued one at a time and are not rolled back; a failed
// deletion is reported to the observer and skipped. When an archiver is
// configured, all candidates are archived first and an archive failure
// aborts the purge before anything is deleted.
func (s *Store) PurgeOlderThanWithResult(ctx context.Context, email string, retention time.Duration) (_ *PurgeResult, err error) {
	start := time.Now()
	ev := observability.Event{Op: observability.OpPurge, Scope: string(partition.ScopeAll)}
	result := &PurgeResult{}
	defer func() { ev.Err, ev.Count = err, len(result.Deleted); s.observe(ctx, start, ev) }()

	ns, candidates, exempt, err := s.expired(ctx, email, retention)
	if err != nil {
		return nil, err
	}
	ev.Namespace = ns
	result.Exempt = exempt
	if len(candidates) == 0 {
		return result, nil
	}

	if s.archiver != nil {
		archiveStart := time.Now()
		location, err := s.archiver.Archive(ctx, ns, candidates)
		s.observe(ctx, archiveStart, observability.Event{
			Op: observability.OpArchive, Namespace: ns, Key: location, Count: len(candidates), Err: err,
		})
		if err != nil {
			return nil, tlerrors.Wrap(tlerrors.ErrCategoryStore, tlerrors.CodeArchiveFailed,
				fmt.Sprintf("archive of %d entries in %s", len(candidates), ns), err)
		}
		result.Archive = location
	}

	for _, e := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		entryStart := time.Now()
		loc := s.scheme.Locate(e)
		rmErr := s.remove(ctx, ns, loc)
		s.observe(ctx, entryStart, observability.Event{
			Op: observability.OpPurgeEntry, Namespace: ns, Entity: loc.Entity, Key: loc.Key, Entry: e, Err: rmErr,
		})
		if rmErr != nil {
			result.Failed = append(result.Failed, e.ID)
			continue
		}
		result.Deleted = append(result.Deleted, e.ID)
	}
	return result, nil
}

// FindExpired returns the entries a purge with the given retention would
// delete, without deleting anything.
func (s *Store) FindExpired(ctx context.Context, email string, retention time.Duration) ([]*types.Entry, error) {
	_, candidates, _, err := s.expired(ctx, email, retention)
	return candidates, err
}

func (s *Store) expired(ctx context.Context, email string, retention time.Duration) (string, []*types.Entry, int, error) {
	if retention < 0 {
		return "", nil, 0, tlerrors.NewValidationError(tlerrors.CodeInvalidValue,
			fmt.Sprintf("retention must be >= 0, got %s", retention))
	}
	ns, err := s.codec(email)
	if err != nil {
		return "", nil, 0, err
	}
	records, err := s.scan(ctx, ns, s.scheme.ScansFor(partition.Range{}))
	if err != nil {
		return "", nil, 0, err
	}

	cutoff := s.now().Add(-retention)
	var candidates []*types.Entry
	exempt := 0
	for _, r := range records {
		if !r.entry.CreatedAt.Before(cutoff) {
			continue
		}
		if r.entry.IsSystemGenerated {
			exempt++
			continue
		}
		candidates = append(candidates, r.entry)
	}
	return ns, candidates, exempt, nil
}
