package editorial

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// NewLocalExecLock returns an in-process lock, suitable for single-node
// deployments and tests. Multi-node deployments use NewRedisExecLock.
func NewLocalExecLock() ExecLock {
	return &localExecLock{
		locks: &sync.Map{},
	}
}

type localExecLock struct {
	locks *sync.Map // key -> *localLockInfo
}

type localLockInfo struct {
	mu       sync.Mutex
	value    string // holder token, checked on release
	expireAt time.Time
	timer    *time.Timer
}

func (l *localExecLock) NonBlockingSynchronized(ctx context.Context, key string, maxLockTimeDuration time.Duration, f func(context.Context) error) error {
	// Re-entrant: a holder token in the context means we already own this
	// key further up the stack.
	valueInterface := ctx.Value(lockKey(key))
	if _, ok := valueInterface.(string); ok {
		return f(ctx)
	}

	value := l.getRandomValue()

	lockInfo, _ := l.locks.LoadOrStore(key, &localLockInfo{})
	info := lockInfo.(*localLockInfo)

	if !info.mu.TryLock() {
		return errors.WithMessage(LockFailedError, "[localExecLock.NonBlockingSynchronized] has been locked")
	}

	info.value = value
	info.expireAt = time.Now().Add(maxLockTimeDuration)
	info.timer = time.AfterFunc(maxLockTimeDuration, func() {
		l.releaseKey(key, value)
	})

	withKeyCtx := context.WithValue(ctx, lockKey(key), value)
	defer l.releaseKey(key, value)
	return f(withKeyCtx)
}

func (l *localExecLock) getRandomValue() string {
	return fmt.Sprintf("%d_%d", rand.Int(), time.Now().UnixNano())
}

func (l *localExecLock) releaseKey(key string, value string) {
	lockInfo, ok := l.locks.Load(key)
	if !ok {
		// already released, possibly by the expiry timer
		return
	}
	info := lockInfo.(*localLockInfo)
	if info.value != value {
		slog.Warn("[localExecLock.releaseKey] holder token mismatch", "expected", info.value, "got", value)
		return
	}
	if info.timer != nil {
		info.timer.Stop()
	}
	info.mu.Unlock()
	l.locks.Delete(key)
}
