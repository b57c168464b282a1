package observability

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arkilian/timeline/internal/snl"
)

// InstrumentedExecutor wraps an snl.Executor with command counters and
// latencies labelled by operation.
type InstrumentedExecutor struct {
	next     snl.Executor
	commands *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// InstrumentExecutor registers the executor collectors on reg and wraps next.
func InstrumentExecutor(next snl.Executor, reg prometheus.Registerer) (*InstrumentedExecutor, error) {
	e := &InstrumentedExecutor{
		next: next,
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "timeline",
			Subsystem: "snl",
			Name:      "commands_total",
			Help:      "Number of SNL commands executed, grouped by operation and outcome.",
		}, []string{"op", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "timeline",
			Subsystem: "snl",
			Name:      "command_duration_seconds",
			Help:      "Latency of SNL command execution.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	for _, c := range []prometheus.Collector{e.commands, e.latency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Execute implements snl.Executor.
func (e *InstrumentedExecutor) Execute(ctx context.Context, command, credential string) (snl.Response, error) {
	start := time.Now()
	resp, err := e.next.Execute(ctx, command, credential)
	op := commandOp(command)
	e.commands.WithLabelValues(op, commandOutcome(err)).Inc()
	e.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	return resp, err
}

// commandOp returns the operation word of a command, or "unknown" so label
// cardinality stays bounded.
func commandOp(command string) string {
	word, _, _ := strings.Cut(strings.TrimSpace(command), "(")
	if op := snl.Operation(strings.TrimSpace(word)); op.Valid() {
		return string(op)
	}
	return "unknown"
}

func commandOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, snl.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
