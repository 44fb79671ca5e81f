// Package locker serializes work on one key, within a process or across processes.
package locker

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired is returned when the lock is held by someone else.
var ErrNotAcquired = errors.New("lock not acquired")

// DefaultTTL bounds how long a lock survives a crashed holder.
const DefaultTTL = 2 * time.Minute

// Locker grants exclusive leases on keys. Acquire never blocks: when the key is held
// it returns ErrNotAcquired. The returned release function is safe to call more
// than once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
