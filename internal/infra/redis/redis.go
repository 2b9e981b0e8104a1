package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sifan077/LinkShield/config"
)

const (
	defaultDialTimeout = 5 * time.Second
	// Latch and rate-limit calls sit on the visitor's request path.
	commandTimeout = 500 * time.Millisecond
)

// NewClient builds the client shared by the link cache, the redirect latch and
// the rate limiter, and verifies connectivity via PING.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(Options(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", rdb.Options().Addr, err)
	}

	return rdb, nil
}

// Options maps config onto client options.
func Options(cfg config.RedisConfig) *redis.Options {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 6379
	}

	return &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		ClientName:   "linkshield",
		DialTimeout:  defaultDialTimeout,
		ReadTimeout:  commandTimeout,
		WriteTimeout: commandTimeout,
	}
}
