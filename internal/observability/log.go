package observability

import (
	"context"
	"log/slog"
)

// LogObserver writes every event to a slog.Logger. Successful reads log at
// debug, writes at info, failures at warn.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver creates a LogObserver. A nil logger discards output.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LogObserver{logger: logger}
}

func (o *LogObserver) Observe(ctx context.Context, ev Event) {
	attrs := []slog.Attr{
		slog.String("op", ev.Op),
		slog.String("namespace", ev.Namespace),
		slog.Duration("duration", ev.Duration),
	}
	if ev.Entity != "" {
		attrs = append(attrs, slog.String("entity", ev.Entity))
	}
	if ev.Key != "" {
		attrs = append(attrs, slog.String("key", ev.Key))
	}
	if ev.Scope != "" {
		attrs = append(attrs, slog.String("scope", ev.Scope))
	}
	if ev.Count > 0 {
		attrs = append(attrs, slog.Int("count", ev.Count))
	}

	level := slog.LevelDebug
	switch {
	case ev.Err != nil:
		level = slog.LevelWarn
		attrs = append(attrs, slog.Any("error", ev.Err))
	case isWrite(ev.Op):
		level = slog.LevelInfo
	}
	o.logger.LogAttrs(ctx, level, "timeline "+ev.Op, attrs...)
}

func isWrite(op string) bool {
	switch op {
	case OpAdd, OpUpdate, OpRemove, OpTag, OpUntag, OpPurge, OpPurgeEntry, OpArchive:
		return true
	}
	return false
}
