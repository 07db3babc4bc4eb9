/*
Package store abstracts the shared broker every fleet member synchronizes
through.

This file contains the Redis implementation of both the Store and Bus
contracts, backed by a single go-redis client.
*/
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"connectmatch/internal/pkg/logx"
)

// Redis implements Store and Bus against a Redis server.
type Redis struct {
	rdb    *redis.Client
	logger zerolog.Logger
}

// NewRedis constructs a Redis store/bus for the given server address.
// The connection is lazy; call Ping to verify reachability at startup.
func NewRedis(addr, password string, db int) *Redis {
	return &Redis{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		logger: logx.Logger().With().Str("component", "RedisStore").Logger(),
	}
}

// Ping verifies the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the underlying client connections.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

// Get returns the value at key; the boolean is false when the key is absent.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %q: %w", key, err)
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (r *Redis) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (r *Redis) ListAppend(ctx context.Context, key, value string) error {
	if err := r.rdb.RPush(ctx, key, value).Err(); err != nil {
		return fmt.Errorf("redis rpush %q: %w", key, err)
	}
	return nil
}

func (r *Redis) ListTrim(ctx context.Context, key string, start, stop int64) error {
	if err := r.rdb.LTrim(ctx, key, start, stop).Err(); err != nil {
		return fmt.Errorf("redis ltrim %q: %w", key, err)
	}
	return nil
}

func (r *Redis) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := r.rdb.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange %q: %w", key, err)
	}
	return vals, nil
}

func (r *Redis) ListSet(ctx context.Context, key string, index int64, value string) error {
	if err := r.rdb.LSet(ctx, key, index, value).Err(); err != nil {
		return fmt.Errorf("redis lset %q[%d]: %w", key, index, err)
	}
	return nil
}

func (r *Redis) SetAdd(ctx context.Context, key, member string) error {
	if err := r.rdb.SAdd(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("redis sadd %q: %w", key, err)
	}
	return nil
}

func (r *Redis) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := r.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %q: %w", key, err)
	}
	return members, nil
}

func (r *Redis) SetRemove(ctx context.Context, key, member string) error {
	if err := r.rdb.SRem(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("redis srem %q: %w", key, err)
	}
	return nil
}

func (r *Redis) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := r.rdb.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, fmt.Errorf("redis keys %q: %w", pattern, err)
	}
	return keys, nil
}

// Publish sends payload on channel.
func (r *Redis) Publish(ctx context.Context, channel, payload string) error {
	if err := r.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %q: %w", channel, err)
	}
	return nil
}

// PSubscribe opens a pattern subscription and drains it into fn from a
// dedicated goroutine. The goroutine exits when the subscription is closed.
func (r *Redis) PSubscribe(ctx context.Context, pattern string, fn Handler) (Subscription, error) {
	pubsub := r.rdb.PSubscribe(ctx, pattern)

	// Force the subscription onto the wire before returning, so callers
	// can publish immediately after Start.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("redis psubscribe %q: %w", pattern, err)
	}

	go func() {
		for msg := range pubsub.Channel() {
			fn(msg.Channel, msg.Payload)
		}
		r.logger.Debug().Str("pattern", pattern).Msg("Pattern subscription drained and closed.")
	}()

	return pubsub, nil
}
