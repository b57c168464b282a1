package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/timeline/internal/engine"
	"github.com/arkilian/timeline/internal/snl"
	"github.com/arkilian/timeline/internal/timeline"
	"github.com/arkilian/timeline/pkg/types"
)

func newServer(t *testing.T, opts ...engine.Option) *httptest.Server {
	t.Helper()
	eng := engine.New(engine.NewMemoryBackend(2), opts...)
	srv := httptest.NewServer(NewHandler(eng, nil))
	t.Cleanup(func() {
		srv.Close()
		eng.Close()
	})
	return srv
}

func TestExecuteHandler_RoundTrip(t *testing.T) {
	srv := newServer(t)
	client := NewClient(srv.URL)
	ctx := context.Background()

	path := snl.Path{Database: "timeline", Namespace: "ns", Entity: "entries"}
	cmd, err := snl.Build(snl.OpSet, "", snl.Pair{Key: "k", Payload: map[string]int{"n": 1}}, path)
	require.NoError(t, err)

	resp, err := client.Execute(ctx, cmd, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":{"n":1}}`, string(resp))

	cmd, err = snl.Build(snl.OpView, "", nil, path)
	require.NoError(t, err)
	resp, err = client.Execute(ctx, cmd, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":{"n":1}}`, string(resp))
}

func TestClient_ErrorCodes(t *testing.T) {
	srv := newServer(t, engine.WithTokens("token"))
	client := NewClient(srv.URL + "/")
	ctx := context.Background()

	view := "view(structure)\non(timeline.ns.entries)"

	_, err := client.Execute(ctx, view, "bad")
	assert.Equal(t, engine.CodeUnauthorized, engine.CodeOf(err))

	_, err = client.Execute(ctx, view, "token")
	assert.True(t, errors.Is(err, snl.ErrNotFound))

	_, err = client.Execute(ctx, "nonsense", "token")
	assert.Equal(t, engine.CodeBadCommand, engine.CodeOf(err))
}

func TestExecuteHandler_RejectsBadRequests(t *testing.T) {
	srv := newServer(t)

	resp, err := http.Get(srv.URL + "/v1/execute")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/v1/execute", "application/json", strings.NewReader(`{`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, string(engine.CodeBadCommand), body.Code)
	assert.NotEmpty(t, body.RequestID)

	resp, err = http.Post(srv.URL+"/v1/execute", "application/json", strings.NewReader(`{"command":""}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMiddleware_RequestIDs(t *testing.T) {
	srv := newServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderRequestID, "req-1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "req-1", resp.Header.Get(HeaderRequestID))
	assert.Equal(t, "req-1", resp.Header.Get(HeaderCorrelationID))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get(HeaderRequestID))
}

func TestRecoveryMiddleware(t *testing.T) {
	h := DefaultMiddleware(slog.New(slog.DiscardHandler))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestExecuteHandler_PassesOtherErrorsAsInternal(t *testing.T) {
	exec := snl.ExecutorFunc(func(context.Context, string, string) (snl.Response, error) {
		return nil, errors.New("backend exploded")
	})
	srv := httptest.NewServer(NewHandler(exec, nil))
	defer srv.Close()

	_, err := NewClient(srv.URL).Execute(context.Background(), "view(structure)\non(a.b.c)", "")
	require.Error(t, err)
	assert.Equal(t, engine.CodeInternal, engine.CodeOf(err))
	assert.Contains(t, err.Error(), "backend exploded")
}

func TestClient_DrivesTimelineStore(t *testing.T) {
	srv := newServer(t)
	store := timeline.New(NewClient(srv.URL))
	ctx := context.Background()

	e := types.NewEntry(types.EntryInput{
		UserID:    "u1",
		UserEmail: "carol@example.com",
		AIName:    "assistant",
		Action:    "deploy",
		CreatedAt: time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC),
	})
	_, err := store.Add(ctx, e)
	require.NoError(t, err)

	got, err := store.Get(ctx, "carol@example.com", e.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, e.Equal(got))

	// an unknown user has no entity yet; the store reads that as empty
	none, err := store.List(ctx, "dave@example.com", timeline.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, none)
}
