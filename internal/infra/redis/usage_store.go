package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"video-pipeline/internal/domain/ports/repository"
)

var _ repository.UsageStore = (*UsageStore)(nil)

// usageTTL keeps a day's counter around a little past the day itself.
const usageTTL = 48 * time.Hour

// UsageStore counts credential uses per UTC day. Keys expire on their own,
// so yesterday's counters never need an explicit reset.
type UsageStore struct {
	client RedisClient
	prefix string
}

func NewUsageStore(client RedisClient, poolName string) *UsageStore {
	return &UsageStore{client: client, prefix: "pipeline:usage:" + poolName + ":"}
}

func (s *UsageStore) Load(ctx context.Context, credentialID string, day time.Time) (int, error) {
	v, err := s.client.Get(ctx, s.key(credentialID, day))
	if err != nil {
		return 0, fmt.Errorf("load usage %s: %w", credentialID, err)
	}
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("load usage %s: bad counter %q", credentialID, v)
	}
	return n, nil
}

func (s *UsageStore) Increment(ctx context.Context, credentialID string, day time.Time) (int, error) {
	key := s.key(credentialID, day)
	count, err := s.client.Incr(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("increment usage %s: %w", credentialID, err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, usageTTL); err != nil {
			return int(count), fmt.Errorf("expire usage %s: %w", credentialID, err)
		}
	}
	return int(count), nil
}

// UsageKey is the counter key for one credential on one UTC day.
func UsageKey(prefix, credentialID string, day time.Time) string {
	return prefix + credentialID + ":" + day.UTC().Format("2006-01-02")
}

func (s *UsageStore) key(credentialID string, day time.Time) string {
	return UsageKey(s.prefix, credentialID, day)
}
