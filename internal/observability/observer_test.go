package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Observe(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func TestMulti(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	obs := Multi(a, nil, b)
	obs.Observe(context.Background(), Event{Op: OpAdd})

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("expected both observers to receive the event, got %d and %d", len(a.events), len(b.events))
	}
	if _, ok := Multi().(Nop); !ok {
		t.Error("empty Multi should be Nop")
	}
	if Multi(a) != Observer(a) {
		t.Error("single-element Multi should return the observer itself")
	}
}

func TestObserverFunc(t *testing.T) {
	var got string
	ObserverFunc(func(_ context.Context, ev Event) { got = ev.Op }).Observe(context.Background(), Event{Op: OpGet})
	if got != OpGet {
		t.Errorf("got %q", got)
	}
}

func TestLogObserverLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	obs := NewLogObserver(logger)
	ctx := context.Background()

	obs.Observe(ctx, Event{Op: OpGet, Namespace: "ns"})
	if buf.Len() != 0 {
		t.Errorf("reads should log at debug, got %q", buf.String())
	}

	obs.Observe(ctx, Event{Op: OpAdd, Namespace: "ns", Entity: "entries", Key: "2024_01_01_x"})
	if !strings.Contains(buf.String(), "level=INFO") || !strings.Contains(buf.String(), "key=2024_01_01_x") {
		t.Errorf("unexpected write log %q", buf.String())
	}

	buf.Reset()
	obs.Observe(ctx, Event{Op: OpPurgeEntry, Namespace: "ns", Err: errors.New("boom")})
	if !strings.Contains(buf.String(), "level=WARN") || !strings.Contains(buf.String(), "error=boom") {
		t.Errorf("unexpected failure log %q", buf.String())
	}

	NewLogObserver(nil).Observe(ctx, Event{Op: OpAdd})
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	m.Observe(ctx, Event{Op: OpAdd})
	m.Observe(ctx, Event{Op: OpAdd, Err: errors.New("x")})
	m.Observe(ctx, Event{Op: OpList, Count: 7})
	m.Observe(ctx, Event{Op: OpPurge, Namespace: "ns", Count: 3})

	if got := testutil.ToFloat64(m.operations.WithLabelValues(OpAdd, "ok")); got != 1 {
		t.Errorf("add ok = %v", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues(OpAdd, "error")); got != 1 {
		t.Errorf("add error = %v", got)
	}
	if got := testutil.ToFloat64(m.entries.WithLabelValues(OpList)); got != 7 {
		t.Errorf("list entries = %v", got)
	}
	if got := testutil.ToFloat64(m.lastPurge.WithLabelValues("ns")); got != 3 {
		t.Errorf("last purge = %v", got)
	}

	if _, err := NewMetrics(reg); err == nil {
		t.Error("registering twice should fail")
	}
}
