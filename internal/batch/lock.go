package batch

import (
	"anchor/internal/domain"
	rdb "anchor/internal/stores/redis"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"gitlab.com/nevasik7/alerting/logger"
)

// Locker guards one batch cycle. TryLock never waits: a held lock is ErrBatchInProgress.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(), err error)
}

// In-process single-flight, enough for one instance
type LocalLocker struct {
	mu sync.Mutex
}

var _ Locker = (*LocalLocker)(nil)

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{}
}

func (l *LocalLocker) TryLock(_ context.Context) (func(), error) {
	if !l.mu.TryLock() {
		return nil, domain.ErrBatchInProgress
	}
	return l.mu.Unlock, nil
}

// release only if we still own the lock
var unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Cluster single-flight: SET NX PX with an owner token, released by compare-and-delete.
// ttl must outlive a batch cycle; an expired lease lets another instance start.
type RedisLocker struct {
	log logger.Logger
	rdb *rdb.Client
	key string
	ttl time.Duration
}

var _ Locker = (*RedisLocker)(nil)

func NewRedisLocker(log logger.Logger, client *rdb.Client, key string, ttl time.Duration) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis client is required to the batch locker")
	}
	if key == "" {
		key = "anchor:batch:lock"
	}
	if ttl <= 0 {
		ttl = time.Minute
	}

	return &RedisLocker{log: log, rdb: client, key: key, ttl: ttl}, nil
}

func (l *RedisLocker) TryLock(ctx context.Context) (func(), error) {
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, domain.ErrBatchInProgress
	}

	return func() {
		// the cycle's ctx may already be cancelled
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := unlockScript.Run(ctx, l.rdb, []string{l.key}, token).Err(); err != nil {
			l.log.Errorf("Failed to release batch lock %s, error=%v", l.key, err)
		}
	}, nil
}
