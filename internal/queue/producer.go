package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"clinichire.app/scout/internal/extract"
)

// DefaultMaxLen bounds the stream; trimming is approximate.
const DefaultMaxLen = 100_000

// StreamAdder is the part of the redis client the producer needs.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Producer publishes extraction events. It satisfies extract.Recorder so it
// can sit directly behind the pipeline.
type Producer interface {
	extract.Recorder
	Close() error
}

type redisProducer struct {
	client StreamAdder
	stream string
	maxLen int64
	logger *slog.Logger
}

func NewRedisProducer(client StreamAdder, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		maxLen: DefaultMaxLen,
		logger: logger,
	}
}

func (p *redisProducer) Record(ctx context.Context, ev extract.Event) error {
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: EventValues(ev),
	}).Result()
	if err != nil {
		return fmt.Errorf("publishing extraction event: %w", err)
	}

	p.logger.DebugContext(ctx, "published extraction event",
		"extraction_id", ev.ExtractionID,
		"outcome", ev.Outcome,
		"stream", p.stream,
		"message_id", id)
	return nil
}

func (p *redisProducer) Close() error {
	if c, ok := p.client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
