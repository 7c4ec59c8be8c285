package tracing

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultStream is the Redis stream trace events are published to.
const DefaultStream = "osint.traces"

// LogSink writes events to a zap logger.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Write(_ context.Context, ev Event) error {
	if s.Logger == nil {
		return nil
	}
	fields := []zap.Field{
		zap.String("investigation", ev.InvestigationID),
		zap.Uint64("seq", ev.Seq),
		zap.String("kind", string(ev.Kind)),
	}
	if len(ev.Detail) > 0 {
		fields = append(fields, zap.Any("detail", ev.Detail))
	}
	s.Logger.Debug("trace", fields...)
	return nil
}

// StreamAdder is the subset of *redis.Client used by RedisStreamSink.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStreamSink publishes events to a Redis stream.
type RedisStreamSink struct {
	Client StreamAdder
	Stream string
	// MaxLen trims the stream approximately when > 0.
	MaxLen int64
}

func (s RedisStreamSink) Write(ctx context.Context, ev Event) error {
	if s.Client == nil {
		return errors.New("tracing: redis client not configured")
	}
	stream := s.Stream
	if stream == "" {
		stream = DefaultStream
	}
	detail := "{}"
	if len(ev.Detail) > 0 {
		raw, err := json.Marshal(ev.Detail)
		if err != nil {
			return err
		}
		detail = string(raw)
	}
	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"investigation": ev.InvestigationID,
			"seq":           strconv.FormatUint(ev.Seq, 10),
			"kind":          string(ev.Kind),
			"at":            ev.At.Format(time.RFC3339Nano),
			"detail":        detail,
		},
	}
	if s.MaxLen > 0 {
		args.MaxLen = s.MaxLen
		args.Approx = true
	}
	_, err := s.Client.XAdd(ctx, args).Result()
	return err
}

// MultiSink fans an event out to several sinks.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, ev Event) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Write(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EventStore is durable storage for trace events.
type EventStore interface {
	SaveTraceEvent(ctx context.Context, ev Event) error
	ListTraceEvents(ctx context.Context, investigationID string, after uint64) ([]Event, error)
}

// StoreSink writes events to an EventStore so audit logs survive restarts.
type StoreSink struct {
	Store EventStore
}

func (s StoreSink) Write(ctx context.Context, ev Event) error {
	if s.Store == nil {
		return errors.New("tracing: event store not configured")
	}
	return s.Store.SaveTraceEvent(ctx, ev)
}

// ResumeFrom returns an Options.Resume that reads the last persisted sequence
// number from store. Lookup failures resume from zero.
func ResumeFrom(store EventStore, timeout time.Duration) func(string) uint64 {
	return func(investigationID string) uint64 {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		events, err := store.ListTraceEvents(ctx, investigationID, 0)
		if err != nil || len(events) == 0 {
			return 0
		}
		return events[len(events)-1].Seq
	}
}
