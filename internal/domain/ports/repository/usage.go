package repository

import (
	"context"
	"time"
)

// UsageStore persists per-credential daily usage so quota survives restarts.
type UsageStore interface {
	// Load returns the usage recorded for credentialID on day (UTC).
	Load(ctx context.Context, credentialID string, day time.Time) (int, error)
	// Increment adds one use and returns the new total.
	Increment(ctx context.Context, credentialID string, day time.Time) (int, error)
}
