package batchstore

import (
	"anchor/internal/domain"
	rdb "anchor/internal/stores/redis"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gitlab.com/nevasik7/alerting/logger"
)

// RedisRepository stores results as JSON under <prefix>batch:<id>, so every instance serves proofs
type RedisRepository struct {
	log    logger.Logger
	rdb    *rdb.Client
	prefix string
	ttl    time.Duration // 0 keeps results forever
}

var _ Repository = (*RedisRepository)(nil)

func NewRedisRepository(log logger.Logger, client *rdb.Client, prefix string, ttl time.Duration) (*RedisRepository, error) {
	if client == nil {
		return nil, errors.New("redis client is required to the batch repository")
	}
	if prefix == "" {
		prefix = "anchor:"
	}

	return &RedisRepository{log: log, rdb: client, prefix: prefix, ttl: ttl}, nil
}

func (r *RedisRepository) key(batchID string) string {
	return r.prefix + "batch:" + batchID
}

func (r *RedisRepository) latestKey() string {
	return r.prefix + "batch:latest"
}

func (r *RedisRepository) Save(ctx context.Context, res *domain.BatchResult) error {
	if res == nil || res.BatchID == "" {
		return errInvalidResult
	}

	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode batch %s: %w", res.BatchID, err)
	}

	_, err = r.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, r.key(res.BatchID), b, r.ttl)
		p.Set(ctx, r.latestKey(), res.BatchID, r.ttl)
		return nil
	})
	if err != nil {
		r.log.Errorf("Failed to save batch %s to redis, error=%v", res.BatchID, err)
		return fmt.Errorf("redis save batch %s: %w", res.BatchID, err)
	}
	return nil
}

func (r *RedisRepository) Get(ctx context.Context, batchID string) (*domain.BatchResult, error) {
	b, err := r.rdb.Get(ctx, r.key(batchID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, notFound(batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get batch %s: %w", batchID, err)
	}

	var res domain.BatchResult
	if err = json.Unmarshal(b, &res); err != nil {
		return nil, fmt.Errorf("failed to decode batch %s: %w", batchID, err)
	}
	return &res, nil
}

func (r *RedisRepository) Latest(ctx context.Context) (*domain.BatchResult, error) {
	id, err := r.rdb.Get(ctx, r.latestKey()).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, notFound("latest")
	}
	if err != nil {
		return nil, fmt.Errorf("redis get latest batch: %w", err)
	}
	return r.Get(ctx, id)
}
