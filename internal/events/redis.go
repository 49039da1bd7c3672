package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/amazon-product-tracker/internal/metrics"
)

const DefaultStream = "stream:tracker:events"

// StreamClient is the part of the Redis client used for stream publishing.
type StreamClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

type RedisPublisherConfig struct {
	Stream string
	// MaxLen caps the stream with approximate trimming. Zero disables trimming.
	MaxLen int64
	// SkipProgress drops progress events, which are noisy for downstream consumers.
	SkipProgress bool
}

// RedisPublisher forwards job events to a Redis stream.
type RedisPublisher struct {
	client  StreamClient
	cfg     RedisPublisherConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewRedisPublisher(client StreamClient, cfg RedisPublisherConfig, logger *slog.Logger, m *metrics.Metrics) *RedisPublisher {
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	return &RedisPublisher{
		client:  client,
		cfg:     cfg,
		logger:  logger.With("component", "redis_publisher"),
		metrics: m,
	}
}

func (p *RedisPublisher) Handle(ctx context.Context, e Event) error {
	if p.cfg.SkipProgress && e.Type == TypeProgress {
		return nil
	}
	err := p.Publish(ctx, e)
	p.metrics.EventPublished(string(e.Type), err == nil)
	return err
}

// Publish appends e to the configured stream.
func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.cfg.Stream,
		Values: map[string]interface{}{
			"data":      string(data),
			"type":      string(e.Type),
			"job_id":    e.JobID,
			"timestamp": strconv.FormatInt(e.Time.UnixNano(), 10),
		},
	}
	if p.cfg.MaxLen > 0 {
		args.MaxLen = p.cfg.MaxLen
		args.Approx = true
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	p.logger.Debug("event published", "job_id", e.JobID, "type", e.Type, "stream_id", id)
	return nil
}
