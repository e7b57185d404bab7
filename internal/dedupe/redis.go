package dedupe

import (
	"anchor/internal/config"
	rdb "anchor/internal/stores/redis"
	"context"
	"fmt"
	"time"

	"gitlab.com/nevasik7/alerting/logger"
)

// Cluster dedupe over Redis SETNX + TTL
type RedisDedupe struct {
	log    logger.Logger
	rdb    *rdb.Client
	ttl    time.Duration
	prefix string
}

var _ Deduper = (*RedisDedupe)(nil)

// prefix example "anchor:dedupe:"
func NewRedisDeduper(log logger.Logger, cfg *config.DedupeConfig, rdb *rdb.Client) (*RedisDedupe, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required to the redis deduper")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required to the redis deduper")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "dedupe:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisDedupe{
		log:    log,
		rdb:    rdb,
		ttl:    ttl,
		prefix: prefix,
	}, nil
}

func (d *RedisDedupe) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, d.prefix+key, 1, d.ttl).Result()
	if err != nil {
		d.log.Errorf("Redis SetNX error=%v", err)
		return false, fmt.Errorf("redis SetNX: %w", err)
	}

	// ok=true -> new key; ok=false -> seen
	return !ok, nil
}

func (d *RedisDedupe) Forget(ctx context.Context, key string) error {
	if err := d.rdb.Del(ctx, d.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis Del: %w", err)
	}
	return nil
}

func (d *RedisDedupe) Health(ctx context.Context) error {
	return d.rdb.Ping(ctx).Err()
}
