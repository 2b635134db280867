package lock

import (
	"context"
	"time"

	"learning_progress_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// 只删除自己持有的锁，避免 TTL 过期后误删他人的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker 多实例部署时的分布式锁
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
		retry:  20 * time.Millisecond,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	token := uuid.New().String()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "acquire lock %s", key)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, errors.Wrap(ErrLockTimeout, key)
		}
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ErrLockTimeout, key)
		case <-time.After(l.retry):
		}
	}

	return func() {
		// 调用方的 ctx 可能已取消，释放锁用独立的 ctx
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			logger.Log.Warn("Failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// New Redis 可用时返回分布式锁，否则退回进程内锁
func New(client *redis.Client, ttl, wait time.Duration) Locker {
	if client == nil {
		return NewLocalLocker(wait)
	}
	return NewRedisLocker(client, ttl, wait)
}
