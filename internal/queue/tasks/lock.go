package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker grants exclusive, expiring ownership of a key.
type Locker interface {
	// Acquire reports ok=false when the key is held by someone else.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// LockKey is the lock guarding one deployment's pipeline.
func LockKey(id uuid.UUID) string {
	return "deploy:lock:" + id.String()
}

// releaseScript deletes the key only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX.
type RedisLocker struct {
	client redis.UniversalClient
}

func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return func() {}, false, err
	}
	release := func() {
		// the task context may already be cancelled
		if err := releaseScript.Run(context.Background(), l.client, []string{key}, token).Err(); err != nil {
			logger.L().Warn("release pipeline lock failed", zap.String("key", key), zap.Error(err))
		}
	}
	return release, true, nil
}
