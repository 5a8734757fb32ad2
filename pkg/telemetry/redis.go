// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis sink
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	Encoding Encoding
	Timeout  time.Duration
}

// redisPublisher is the part of redis.Client the sink uses
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes each update as one message on a pub/sub channel
type RedisSink struct {
	client  *redis.Client
	pub     redisPublisher
	channel string
	enc     Encoding
}

// NewRedisSink connects to Redis and checks the connection
func NewRedisSink(ctx context.Context, cfg RedisConfig) (*RedisSink, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Channel == "" {
		cfg.Channel = appID
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("telemetry: redis ping failed: %w", err)
	}

	return &RedisSink{client: rdb, pub: rdb, channel: cfg.Channel, enc: cfg.Encoding}, nil
}

// Publish implements Sink
func (s *RedisSink) Publish(ctx context.Context, u Update) error {
	payload, err := s.enc.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}
	return s.pub.Publish(ctx, s.channel, payload).Err()
}

// Close closes the Redis connection
func (s *RedisSink) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
