package editorial

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type lockKey string

// delCommand releases the key only when the caller still holds it, so an
// expired lock taken over by another process is never deleted.
const delCommand = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`

// NewRedisExecLock returns a distributed lock over the given redis client,
// for deployments where several engine instances share one store.
func NewRedisExecLock(redisClient redis.Cmdable) ExecLock {
	return &redisExecLock{redisClient: redisClient}
}

type redisExecLock struct {
	redisClient redis.Cmdable
}

func (d *redisExecLock) NonBlockingSynchronized(ctx context.Context, key string, maxLockTimeDuration time.Duration, f func(ctx2 context.Context) error) error {
	valueInterface := ctx.Value(lockKey(key))
	if _, ok := valueInterface.(string); ok {
		// re-entrant path, already holding the key
		return f(ctx)
	}
	value := d.getRandomValue()

	isLock, err := d.redisClient.SetNX(ctx, key, value, maxLockTimeDuration).Result()
	if err != nil {
		return errors.WithMessagef(LockFailedError, "[redisExecLock.NonBlockingSynchronized], err:%v", err)
	}
	if !isLock {
		return errors.WithMessage(LockFailedError, "[redisExecLock.NonBlockingSynchronized] has been locked")
	}

	withKeyCtx := context.WithValue(ctx, lockKey(key), value)
	defer d.releaseKey(key, value)
	return f(withKeyCtx)
}

func (d *redisExecLock) getRandomValue() string {
	return fmt.Sprintf("%d_%d", rand.Int(), time.Now().UnixNano())
}

func (d *redisExecLock) releaseKey(key string, value string) {
	// The caller's context may already be canceled; release on a fresh one.
	replyInterface, err := d.redisClient.Eval(context.Background(), delCommand, []string{key}, value).Result()
	if err != nil {
		slog.Warn("[redisExecLock.releaseKey] release failed", "key", key, "err", err)
		return
	}
	reply, ok := replyInterface.(int64)
	if !ok || reply != 1 {
		slog.Warn("[redisExecLock.releaseKey] key was not released", "key", key, "reply", replyInterface)
	}
}
