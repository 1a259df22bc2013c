package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisChannelPrefix = "prep:job:"

// RedisChannel is the pub/sub channel carrying events for a job
func RedisChannel(jobID uuid.UUID) string {
	return redisChannelPrefix + jobID.String()
}

// RedisBus publishes events over Redis pub/sub so every server instance sees them
type RedisBus struct {
	client *redis.Client
	log    *zap.Logger
}

// NewRedisBus connects to Redis at url (redis://host:port/db) and verifies the connection
func NewRedisBus(ctx context.Context, url string, logger *zap.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBus{client: client, log: logger.Named("notify.redis")}, nil
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, RedisChannel(ev.JobID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, jobID uuid.UUID) (<-chan Event, error) {
	ps := b.client.Subscribe(ctx, RedisChannel(jobID))
	// Wait for the subscription confirmation so errors surface here, not later.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.log.Warn("dropping malformed event", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				offer(out, ev)
			}
		}
	}()
	return out, nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
