package timeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/timeline/internal/engine"
	tlerrors "github.com/arkilian/timeline/internal/errors"
	"github.com/arkilian/timeline/internal/observability"
	"github.com/arkilian/timeline/internal/partition"
	"github.com/arkilian/timeline/internal/snl"
	"github.com/arkilian/timeline/pkg/types"
)

const aliceEmail = "Alice@Example.com"

// countingExecutor records every command passed to the wrapped executor.
type countingExecutor struct {
	next snl.Executor

	mu       sync.Mutex
	commands []string
}

func (c *countingExecutor) Execute(ctx context.Context, command, credential string) (snl.Response, error) {
	c.mu.Lock()
	c.commands = append(c.commands, command)
	c.mu.Unlock()
	return c.next.Execute(ctx, command, credential)
}

func (c *countingExecutor) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.commands)
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *countingExecutor) {
	t.Helper()
	eng := engine.New(engine.NewMemoryBackend(4))
	t.Cleanup(func() { eng.Close() })
	exec := &countingExecutor{next: eng}
	return New(exec, opts...), exec
}

func makeEntry(created time.Time, mutate func(*types.EntryInput)) *types.Entry {
	in := types.EntryInput{
		UserID:    "u-1",
		UserEmail: aliceEmail,
		AIName:    "assistant",
		Action:    "noop",
		CreatedAt: created,
	}
	if mutate != nil {
		mutate(&in)
	}
	return types.NewEntry(in)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func ids(entries []*types.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestStore_AddGet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	e := makeEntry(day(2024, time.March, 1), func(in *types.EntryInput) {
		in.Action = "user_login"
		in.Category = types.CategorySecurity
		in.Status = types.StatusError
		in.ErrorMessage = "bad password"
		in.Duration = 120
		in.InputData = types.Value(`{"user":"alice","attempt":3}`)
		in.Metadata = types.Value(`{"ip":"10.0.0.1","nested":{"ok":false}}`)
		in.Tags = []string{"auth", "web"}
	})

	added, err := s.Add(ctx, e)
	require.NoError(t, err)
	assert.Same(t, e, added)

	got, err := s.Get(ctx, aliceEmail, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, e.Equal(got), "got %+v, want %+v", got, e)

	missing, err := s.Get(ctx, aliceEmail, types.NewEntryID(time.Now()))
	require.NoError(t, err)
	assert.Nil(t, missing)

	// other users see nothing
	other, err := s.Get(ctx, "bob@example.com", e.ID)
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestStore_AddValidationIssuesNoCommand(t *testing.T) {
	s, exec := newTestStore(t)

	e := makeEntry(day(2024, time.March, 1), nil)
	e.UserID = ""
	e.Category = "bogus"

	_, err := s.Add(context.Background(), e)
	require.Error(t, err)
	assert.True(t, tlerrors.IsValidation(err))
	assert.Equal(t, tlerrors.CodeMissingField, tlerrors.GetCode(err))
	assert.Zero(t, exec.count())

	_, err = s.Add(context.Background(), nil)
	assert.True(t, tlerrors.IsValidation(err))
	assert.Zero(t, exec.count())
}

func TestStore_AddBadEmail(t *testing.T) {
	s, exec := newTestStore(t)
	e := makeEntry(day(2024, time.March, 1), nil)
	e.UserEmail = "bad/email@example.com"

	_, err := s.Add(context.Background(), e)
	assert.True(t, tlerrors.IsNamespace(err))
	assert.Zero(t, exec.count())
}

func TestStore_Remove(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Remove(ctx, aliceEmail, "nope")
	assert.True(t, tlerrors.IsNotFound(err))

	e := makeEntry(day(2024, time.March, 1), nil)
	_, err = s.Add(ctx, e)
	require.NoError(t, err)

	ok, err := s.Remove(ctx, aliceEmail, e.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Get(ctx, aliceEmail, e.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = s.Remove(ctx, aliceEmail, e.ID)
	assert.True(t, tlerrors.IsNotFound(err))
}

func TestStore_WildcardIDsNeverDeleteOtherEntries(t *testing.T) {
	now := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	s, exec := newTestStore(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	victim := makeEntry(day(2024, time.March, 1), nil)
	_, err := s.Add(ctx, victim)
	require.NoError(t, err)

	wild := makeEntry(day(2024, time.March, 1), nil)
	wild.ID = snl.Wildcard
	before := exec.count()
	_, err = s.Add(ctx, wild)
	assert.True(t, tlerrors.IsValidation(err))
	assert.Equal(t, before, exec.count(), "rejected add must not reach the store")

	_, err = s.Remove(ctx, aliceEmail, snl.Wildcard)
	assert.True(t, tlerrors.IsValidation(err))
	_, err = s.Get(ctx, aliceEmail, "2024_03_01_"+snl.Wildcard)
	assert.True(t, tlerrors.IsValidation(err))

	got, err := s.Get(ctx, aliceEmail, victim.ID)
	require.NoError(t, err)
	require.NotNil(t, got, "victim survives a wildcard remove")

	// a record written by another client with a wildcard in its key
	ns, err := s.codec(aliceEmail)
	require.NoError(t, err)
	loc := s.scheme.Locate(wild)
	cmd, err := snl.Build(snl.OpSet, snl.KindStructure, snl.Pair{Key: loc.Key, Payload: wild}, s.path(ns, loc.Entity))
	require.NoError(t, err)
	_, err = exec.Execute(ctx, cmd, "")
	require.NoError(t, err)

	result, err := s.PurgeOlderThanWithResult(ctx, aliceEmail, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{victim.ID}, result.Deleted)
	assert.Equal(t, []string{snl.Wildcard}, result.Failed)

	left, err := s.List(ctx, aliceEmail, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{snl.Wildcard}, ids(left))
}

func TestStore_GetExactIDOnly(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	long := makeEntry(day(2024, time.March, 1), nil)
	long.ID = "x_abc"
	short := makeEntry(day(2024, time.March, 2), nil)
	short.ID = "abc"
	for _, e := range []*types.Entry{long, short} {
		_, err := s.Add(ctx, e)
		require.NoError(t, err)
	}

	got, err := s.Get(ctx, aliceEmail, "abc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "abc", got.ID)
	assert.Equal(t, 2, got.Day)

	got, err = s.Get(ctx, aliceEmail, "bc")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_ListPagination(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var added []*types.Entry
	for d := 1; d <= 5; d++ {
		e := makeEntry(day(2024, time.March, d), nil)
		_, err := s.Add(ctx, e)
		require.NoError(t, err)
		added = append(added, e)
	}

	page, err := s.List(ctx, aliceEmail, ListOptions{Page: 2, Limit: 2})
	require.NoError(t, err)
	// newest first: days 5,4 | 3,2 | 1
	assert.Equal(t, []string{added[2].ID, added[1].ID}, ids(page))

	last, err := s.List(ctx, aliceEmail, ListOptions{Page: 3, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{added[0].ID}, ids(last))

	beyond, err := s.List(ctx, aliceEmail, ListOptions{Page: 9, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, beyond)

	all, err := s.List(ctx, aliceEmail, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 5)

	_, err = s.List(ctx, aliceEmail, ListOptions{Page: -1})
	assert.True(t, tlerrors.IsValidation(err))
}

func TestStore_ListByMonth(t *testing.T) {
	for _, scheme := range []partition.Scheme{&partition.Flat{}, &partition.Flat{IncludeTime: true}, &partition.Bucketed{}} {
		t.Run(string(scheme.Strategy()), func(t *testing.T) {
			s, _ := newTestStore(t, WithScheme(scheme))
			ctx := context.Background()

			mar1 := makeEntry(day(2024, time.March, 1), nil)
			mar15 := makeEntry(day(2024, time.March, 15), nil)
			apr1 := makeEntry(day(2024, time.April, 1), nil)
			for _, e := range []*types.Entry{mar1, mar15, apr1} {
				_, err := s.Add(ctx, e)
				require.NoError(t, err)
			}

			march, err := s.List(ctx, aliceEmail, ListOptions{Year: 2024, Month: 3})
			require.NoError(t, err)
			assert.Equal(t, []string{mar15.ID, mar1.ID}, ids(march))

			year, err := s.List(ctx, aliceEmail, ListOptions{Year: 2024})
			require.NoError(t, err)
			assert.Equal(t, []string{apr1.ID, mar15.ID, mar1.ID}, ids(year))

			one, err := s.List(ctx, aliceEmail, ListOptions{Year: 2024, Month: 3, Day: 15})
			require.NoError(t, err)
			assert.Equal(t, []string{mar15.ID}, ids(one))

			none, err := s.List(ctx, aliceEmail, ListOptions{Year: 2023})
			require.NoError(t, err)
			assert.Empty(t, none)

			got, err := s.Get(ctx, aliceEmail, mar15.ID)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.True(t, mar15.Equal(got))
		})
	}
}

func TestStore_ListFilters(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ai := makeEntry(day(2024, time.March, 1), func(in *types.EntryInput) { in.Category = types.CategoryAI })
	failed := makeEntry(day(2024, time.March, 2), func(in *types.EntryInput) {
		in.Category = types.CategoryAI
		in.Status = types.StatusError
	})
	general := makeEntry(day(2024, time.March, 3), nil)
	for _, e := range []*types.Entry{ai, failed, general} {
		_, err := s.Add(ctx, e)
		require.NoError(t, err)
	}

	got, err := s.List(ctx, aliceEmail, ListOptions{Category: types.CategoryAI})
	require.NoError(t, err)
	assert.Equal(t, []string{failed.ID, ai.ID}, ids(got))

	got, err = s.List(ctx, aliceEmail, ListOptions{Category: types.CategoryAI, Status: types.StatusSuccess})
	require.NoError(t, err)
	assert.Equal(t, []string{ai.ID}, ids(got))

	_, err = s.List(ctx, aliceEmail, ListOptions{Status: "weird"})
	assert.True(t, tlerrors.IsValidation(err))

	_, err = s.List(ctx, aliceEmail, ListOptions{Month: 13})
	assert.True(t, tlerrors.IsValidation(err))
}

func TestStore_ListEmptyTimeline(t *testing.T) {
	s, _ := newTestStore(t, WithScheme(&partition.Bucketed{}))
	got, err := s.List(context.Background(), aliceEmail, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_SearchRanking(t *testing.T) {
	for _, serverSide := range []bool{false, true} {
		s, _ := newTestStore(t)
		ctx := context.Background()

		login := makeEntry(day(2024, time.January, 1), func(in *types.EntryInput) { in.Action = "user_login" })
		newer := makeEntry(day(2024, time.June, 1), func(in *types.EntryInput) { in.Action = "page_view" })
		for _, e := range []*types.Entry{login, newer} {
			_, err := s.Add(ctx, e)
			require.NoError(t, err)
		}

		got, err := s.Search(ctx, aliceEmail, "login", SearchOptions{ServerSide: serverSide})
		require.NoError(t, err)
		require.NotEmpty(t, got)
		assert.Equal(t, login.ID, got[0].ID)
		if serverSide {
			assert.Len(t, got, 1)
		} else {
			assert.Equal(t, []string{login.ID, newer.ID}, ids(got))
		}
	}
}

func TestStore_SearchDateRange(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var added []*types.Entry
	for d := 1; d <= 4; d++ {
		e := makeEntry(day(2024, time.March, d), func(in *types.EntryInput) { in.Action = "sync" })
		_, err := s.Add(ctx, e)
		require.NoError(t, err)
		added = append(added, e)
	}

	got, err := s.Search(ctx, aliceEmail, "sync", SearchOptions{
		From: added[1].CreatedAt,
		To:   added[2].CreatedAt,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{added[1].ID, added[2].ID}, ids(got))

	got, err = s.Search(ctx, aliceEmail, "sync", SearchOptions{Limit: 1, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{added[2].ID}, ids(got))

	_, err = s.Search(ctx, aliceEmail, "sync", SearchOptions{From: added[2].CreatedAt, To: added[1].CreatedAt})
	assert.True(t, tlerrors.IsValidation(err))
}

func TestStore_SearchBlankTermIsNewestFirst(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	older := makeEntry(day(2024, time.March, 1), func(in *types.EntryInput) {
		in.InputSummary = "long input"
		in.OutputSummary = "long output"
		in.Tags = []string{"busy"}
	})
	newer := makeEntry(day(2024, time.March, 2), nil)
	for _, e := range []*types.Entry{older, newer} {
		_, err := s.Add(ctx, e)
		require.NoError(t, err)
	}

	got, err := s.Search(ctx, aliceEmail, "", SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{newer.ID, older.ID}, ids(got))
}

func TestStore_Update(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	e := makeEntry(day(2024, time.March, 1), nil)
	_, err := s.Add(ctx, e)
	require.NoError(t, err)

	changed := e.Clone()
	changed.OutputSummary = "done"
	changed.Duration = 42
	_, err = s.Update(ctx, changed)
	require.NoError(t, err)

	got, err := s.Get(ctx, aliceEmail, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "done", got.OutputSummary)
	assert.Equal(t, int64(42), got.Duration)

	// same minute, so the temporal fields still match createdAt
	moved := e.Clone()
	moved.CreatedAt = moved.CreatedAt.Add(30 * time.Second)
	require.NoError(t, ValidateEntry(moved))
	_, err = s.Update(ctx, moved)
	assert.Equal(t, tlerrors.CodeImmutable, tlerrors.GetCode(err))

	got, err = s.Get(ctx, aliceEmail, e.ID)
	require.NoError(t, err)
	assert.True(t, e.CreatedAt.Equal(got.CreatedAt))

	ghost := makeEntry(day(2024, time.March, 1), nil)
	_, err = s.Update(ctx, ghost)
	assert.True(t, tlerrors.IsNotFound(err))
}

func TestStore_TagUntag(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	e := makeEntry(day(2024, time.March, 1), func(in *types.EntryInput) { in.Tags = []string{"a"} })
	_, err := s.Add(ctx, e)
	require.NoError(t, err)

	tagged, err := s.Tag(ctx, aliceEmail, e.ID, "b", "a", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tagged.Tags)

	stored, err := s.Get(ctx, aliceEmail, e.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, stored.Tags)

	untagged, err := s.Untag(ctx, aliceEmail, e.ID, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, untagged.Tags)

	stored, err = s.Get(ctx, aliceEmail, e.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, stored.Tags)

	_, err = s.Tag(ctx, aliceEmail, e.ID)
	assert.True(t, tlerrors.IsValidation(err))

	_, err = s.Tag(ctx, aliceEmail, "missing", "x")
	assert.True(t, tlerrors.IsNotFound(err))
}

func TestStore_Stats(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for i, status := range []types.Status{types.StatusSuccess, types.StatusSuccess, types.StatusError} {
		st := status
		e := makeEntry(day(2024, time.March, i+1), func(in *types.EntryInput) {
			in.Status = st
			in.Duration = 100
		})
		_, err := s.Add(ctx, e)
		require.NoError(t, err)
	}

	sum, err := s.Stats(ctx, aliceEmail, ListOptions{Year: 2024, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 67, sum.SuccessRate)
	assert.Equal(t, int64(300), sum.TotalDuration)
	assert.Equal(t, 2, sum.ByStatus[types.StatusSuccess])

	empty, err := s.Stats(ctx, "nobody@example.com", ListOptions{})
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Nil(t, empty.MostActiveDay)
}

func TestStore_PurgeKeepsSystemGenerated(t *testing.T) {
	now := day(2024, time.June, 1)
	s, _ := newTestStore(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	old := makeEntry(now.AddDate(0, 0, -120), nil)
	system := makeEntry(now.AddDate(0, 0, -200), func(in *types.EntryInput) { in.IsSystemGenerated = true })
	recent := makeEntry(now.AddDate(0, 0, -10), nil)
	for _, e := range []*types.Entry{old, system, recent} {
		_, err := s.Add(ctx, e)
		require.NoError(t, err)
	}

	retention := 90 * 24 * time.Hour
	expired, err := s.FindExpired(ctx, aliceEmail, retention)
	require.NoError(t, err)
	assert.Equal(t, []string{old.ID}, ids(expired))

	result, err := s.PurgeOlderThanWithResult(ctx, aliceEmail, retention)
	require.NoError(t, err)
	assert.Equal(t, []string{old.ID}, result.Deleted)
	assert.Equal(t, 1, result.Exempt)
	assert.Empty(t, result.Failed)

	left, err := s.List(ctx, aliceEmail, ListOptions{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{system.ID, recent.ID}, ids(left))

	n, err := s.PurgeOlderThan(ctx, aliceEmail, retention)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.PurgeOlderThan(ctx, aliceEmail, -time.Hour)
	assert.True(t, tlerrors.IsValidation(err))
}

type archiverFunc func(ctx context.Context, ns string, entries []*types.Entry) (string, error)

func (f archiverFunc) Archive(ctx context.Context, ns string, entries []*types.Entry) (string, error) {
	return f(ctx, ns, entries)
}

func TestStore_PurgeArchives(t *testing.T) {
	now := day(2024, time.June, 1)
	var archived []*types.Entry
	var archivedNS string
	s, _ := newTestStore(t,
		WithClock(func() time.Time { return now }),
		WithArchiver(archiverFunc(func(_ context.Context, ns string, entries []*types.Entry) (string, error) {
			archivedNS, archived = ns, entries
			return "archive/x.jsonl.sz", nil
		})))
	ctx := context.Background()

	old := makeEntry(now.AddDate(-1, 0, 0), nil)
	_, err := s.Add(ctx, old)
	require.NoError(t, err)

	result, err := s.PurgeOlderThanWithResult(ctx, aliceEmail, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "archive/x.jsonl.sz", result.Archive)
	assert.Equal(t, "alice_example_com", archivedNS)
	assert.Equal(t, []string{old.ID}, ids(archived))
	assert.Equal(t, []string{old.ID}, result.Deleted)
}

func TestStore_PurgeArchiveFailureDeletesNothing(t *testing.T) {
	now := day(2024, time.June, 1)
	s, _ := newTestStore(t,
		WithClock(func() time.Time { return now }),
		WithArchiver(archiverFunc(func(context.Context, string, []*types.Entry) (string, error) {
			return "", errors.New("bucket unavailable")
		})))
	ctx := context.Background()

	old := makeEntry(now.AddDate(-1, 0, 0), nil)
	_, err := s.Add(ctx, old)
	require.NoError(t, err)

	_, err = s.PurgeOlderThanWithResult(ctx, aliceEmail, time.Hour)
	require.Error(t, err)
	assert.True(t, tlerrors.IsStore(err))
	assert.Equal(t, tlerrors.CodeArchiveFailed, tlerrors.GetCode(err))

	got, err := s.Get(ctx, aliceEmail, old.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

// failingRemoves rejects every remove command and passes the rest through.
type failingRemoves struct{ next snl.Executor }

func (f failingRemoves) Execute(ctx context.Context, command, credential string) (snl.Response, error) {
	if strings.HasPrefix(command, string(snl.OpRemove)+"(") {
		return nil, errors.New("disk full")
	}
	return f.next.Execute(ctx, command, credential)
}

func TestStore_PurgeSkipsFailedDeletions(t *testing.T) {
	now := day(2024, time.June, 1)
	eng := engine.New(engine.NewMemoryBackend(1))
	var failures int
	s := New(failingRemoves{next: eng},
		WithClock(func() time.Time { return now }),
		WithObserver(observability.ObserverFunc(func(_ context.Context, ev observability.Event) {
			if ev.Op == observability.OpPurgeEntry && ev.Err != nil {
				failures++
			}
		})))
	ctx := context.Background()

	for d := 1; d <= 2; d++ {
		_, err := s.Add(ctx, makeEntry(day(2023, time.January, d), nil))
		require.NoError(t, err)
	}

	result, err := s.PurgeOlderThanWithResult(ctx, aliceEmail, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, result.Deleted)
	assert.Len(t, result.Failed, 2)
	assert.Equal(t, 2, failures)
}

func TestStore_StoreErrorWrapsExecutorError(t *testing.T) {
	cause := errors.New("connection refused")
	s := New(snl.ExecutorFunc(func(context.Context, string, string) (snl.Response, error) {
		return nil, cause
	}))

	_, err := s.Add(context.Background(), makeEntry(day(2024, time.March, 1), nil))
	require.Error(t, err)
	assert.True(t, tlerrors.IsStore(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "alice_example_com")
}

func TestStore_ObserverDetachedOnClose(t *testing.T) {
	var mu sync.Mutex
	var events []observability.Event
	s, _ := newTestStore(t, WithObserver(observability.ObserverFunc(func(_ context.Context, ev observability.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})))
	ctx := context.Background()

	e := makeEntry(day(2024, time.March, 1), nil)
	_, err := s.Add(ctx, e)
	require.NoError(t, err)
	_, err = s.List(ctx, aliceEmail, ListOptions{Year: 2024, Category: types.CategoryGeneral})
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, events, 2)
	assert.Equal(t, observability.OpAdd, events[0].Op)
	assert.Equal(t, "alice_example_com", events[0].Namespace)
	assert.Equal(t, 1, events[0].Count)
	assert.Equal(t, observability.OpList, events[1].Op)
	assert.Equal(t, string(partition.ScopeYear), events[1].Scope)
	assert.Equal(t, []string{"category"}, events[1].Filters)
	mu.Unlock()

	require.NoError(t, s.Close())
	_, err = s.Get(ctx, aliceEmail, e.ID)
	require.NoError(t, err)

	mu.Lock()
	assert.Len(t, events, 2)
	mu.Unlock()
}

func TestStore_CodecIsSharedByAllPaths(t *testing.T) {
	atCodec := func(email string) (string, error) {
		return strings.NewReplacer("@", "_at_", ".", "_").Replace(strings.ToLower(email)), nil
	}
	eng := engine.New(engine.NewMemoryBackend(2))
	custom := New(eng, WithCodec(atCodec))
	canonical := New(eng)
	ctx := context.Background()

	e := makeEntry(day(2024, time.March, 1), nil)
	_, err := custom.Add(ctx, e)
	require.NoError(t, err)

	got, err := custom.Get(ctx, aliceEmail, e.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)

	listed, err := custom.List(ctx, aliceEmail, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	// a store using another codec cannot reach the same records
	got, err = canonical.Get(ctx, aliceEmail, e.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_DatabaseAndCredential(t *testing.T) {
	eng := engine.New(engine.NewMemoryBackend(1), engine.WithTokens("s3cret"))
	exec := &countingExecutor{next: eng}
	s := New(exec, WithDatabase("activity"), WithCredential("s3cret"))
	ctx := context.Background()

	e := makeEntry(day(2024, time.March, 1), nil)
	_, err := s.Add(ctx, e)
	require.NoError(t, err)
	assert.Contains(t, exec.commands[0], "on(activity.alice_example_com.entries)")

	denied := New(eng, WithDatabase("activity"))
	_, err = denied.Add(ctx, e)
	assert.True(t, tlerrors.IsStore(err))
}
