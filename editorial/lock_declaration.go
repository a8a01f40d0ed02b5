package editorial

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	LockFailedError = errors.New("lock failed")
)

// ExecLock serializes per-story mutations. Implementations are
// non-blocking (a held lock fails immediately) and re-entrant through the
// context, so a transition may call back into locked helpers.
type ExecLock interface {
	NonBlockingSynchronized(ctx context.Context, key string, maxLockTimeDuration time.Duration, f func(context.Context) error) error
}
