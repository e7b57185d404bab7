package redis

import (
	"anchor/internal/config"
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type Client struct {
	*goredis.Client
}

func New(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is required to the redis client")
	}
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}

	// sane defaults
	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = 5 * time.Second
	}
	read := cfg.ReadTimeout
	if read <= 0 {
		read = 3 * time.Second
	}
	write := cfg.WriteTimeout
	if write <= 0 {
		write = 3 * time.Second
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dial,
		ReadTimeout:  read,
		WriteTimeout: write,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis %s: %w", cfg.Addr, err)
	}

	return &Client{rdb}, nil
}
