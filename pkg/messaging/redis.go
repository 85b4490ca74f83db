package messaging

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ListPusher is the subset of the go-redis client used by RedisListPublisher.
type ListPusher interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// RedisListPublisher pushes encoded messages onto a Redis list for downstream mailers.
type RedisListPublisher struct {
	client ListPusher
	key    string
}

// NewRedisListPublisher builds a list publisher writing to key.
func NewRedisListPublisher(client ListPusher, key string) *RedisListPublisher {
	if key == "" {
		key = "demandes:notifications"
	}
	return &RedisListPublisher{client: client, key: key}
}

// Publish implements Publisher.
func (p *RedisListPublisher) Publish(ctx context.Context, msg Message) error {
	body, err := Encode(msg)
	if err != nil {
		return err
	}
	if err := p.client.LPush(ctx, p.key, body).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", p.key, err)
	}
	return nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (p *RedisListPublisher) Close() error { return nil }
