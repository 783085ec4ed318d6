package repository

import (
	"context"
	"time"
)

// RunLocker keeps two processes from driving the same run.
type RunLocker interface {
	// TryLock fails with domain.ErrRunLocked when key is held elsewhere.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
