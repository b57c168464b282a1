// Package changefeed publishes timeline entry changes to Kafka.
package changefeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/arkilian/timeline/internal/observability"
	"github.com/arkilian/timeline/pkg/types"
)

// DefaultTopic receives change messages when no topic is configured.
const DefaultTopic = "timeline.entries"

// DefaultTimeout bounds one publish.
const DefaultTimeout = 5 * time.Second

// Message is the JSON value of a published change.
type Message struct {
	Type       string       `json:"type"`
	Namespace  string       `json:"namespace"`
	Entity     string       `json:"entity"`
	Key        string       `json:"key"`
	EntryID    string       `json:"entryId,omitempty"`
	OccurredAt time.Time    `json:"occurredAt"`
	Entry      *types.Entry `json:"entry,omitempty"`
}

// Feed is an observer that publishes successful entry writes and deletions.
// Messages are keyed by namespace so one user's changes stay ordered.
type Feed struct {
	producer Producer
	topic    string
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Feed.
type Option func(*Feed)

// WithTopic sets the destination topic.
func WithTopic(topic string) Option {
	return func(f *Feed) {
		if topic != "" {
			f.topic = topic
		}
	}
}

// WithTimeout bounds each publish.
func WithTimeout(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithLogger sets the logger for publish failures.
func WithLogger(l *slog.Logger) Option {
	return func(f *Feed) {
		if l != nil {
			f.logger = l
		}
	}
}

// New creates a feed on producer.
func New(producer Producer, opts ...Option) *Feed {
	f := &Feed{
		producer: producer,
		topic:    DefaultTopic,
		timeout:  DefaultTimeout,
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// published lists the operations that change stored entries.
var published = map[string]bool{
	observability.OpAdd:        true,
	observability.OpUpdate:     true,
	observability.OpRemove:     true,
	observability.OpTag:        true,
	observability.OpUntag:      true,
	observability.OpPurgeEntry: true,
}

// Observe implements observability.Observer. Publish failures are logged and
// never reach the store operation.
func (f *Feed) Observe(ctx context.Context, ev observability.Event) {
	if !published[ev.Op] || ev.Err != nil {
		return
	}
	msg := Message{
		Type:       ev.Op,
		Namespace:  ev.Namespace,
		Entity:     ev.Entity,
		Key:        ev.Key,
		OccurredAt: f.now().UTC(),
		Entry:      ev.Entry,
	}
	if ev.Entry != nil {
		msg.EntryID = ev.Entry.ID
	}
	value, err := json.Marshal(msg)
	if err != nil {
		f.logger.Warn("changefeed encode failed", "op", ev.Op, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	defer cancel()
	err = f.producer.WriteMessages(ctx, f.topic, kafka.Message{
		Key:   []byte(ev.Namespace),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Op)},
		},
	})
	if err != nil {
		f.logger.Warn("changefeed publish failed", "op", ev.Op, "namespace", ev.Namespace, "key", ev.Key, "error", err)
	}
}

// Close closes the producer.
func (f *Feed) Close() error {
	return f.producer.Close()
}
