// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // host:port
	Password string
	DB       int
	// Channel receives every change as JSON.
	Channel string
	// StateTTL bounds how long the last-known session hash survives.
	StateTTL time.Duration
}

const (
	defaultRedisChannel = "playerd:state"
	stateKeyPrefix      = "playerd:session:"
	redisOpTimeout      = 2 * time.Second
)

// RedisPublisher publishes changes on a Redis channel and keeps the latest
// value of every attribute in a per-session hash.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	ttl     time.Duration
	logger  zerolog.Logger
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(config RedisConfig, logger zerolog.Logger) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().
		Str("addr", config.Addr).
		Int("db", config.DB).
		Msg("connected to Redis state publisher")
	return newRedisPublisher(client, config, logger), nil
}

func newRedisPublisher(client *redis.Client, config RedisConfig, logger zerolog.Logger) *RedisPublisher {
	channel := config.Channel
	if channel == "" {
		channel = defaultRedisChannel
	}
	ttl := config.StateTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisPublisher{client: client, channel: channel, ttl: ttl, logger: logger}
}

// StateKey is the hash holding the latest attributes of a session.
func StateKey(sessionKey string) string { return stateKeyPrefix + sessionKey }

// Notify publishes c and records it in the session hash in one transaction.
func (p *RedisPublisher) Notify(ctx context.Context, c Change) error {
	msg, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	value, err := json.Marshal(c.Value)
	if err != nil {
		return fmt.Errorf("encode change value: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	key := StateKey(c.SessionKey)
	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if c.Attribute == AttrDestroyed {
			pipe.Del(ctx, key)
		} else {
			pipe.HSet(ctx, key, c.Attribute, value)
			pipe.Expire(ctx, key, p.ttl)
		}
		pipe.Publish(ctx, p.channel, msg)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// HealthCheck checks if Redis is available.
func (p *RedisPublisher) HealthCheck(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
