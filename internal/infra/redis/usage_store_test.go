package redis

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"
)

type fakeRedis struct {
	vals    map[string]int64
	expires map[string]time.Duration
	failGet bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{vals: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (f *fakeRedis) Ping(context.Context) error { return nil }
func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	if f.failGet {
		return "", errors.New("connection refused")
	}
	v, ok := f.vals[key]
	if !ok {
		return "", nil
	}
	return strconv.FormatInt(v, 10), nil
}
func (f *fakeRedis) Incr(_ context.Context, key string) (int64, error) {
	f.vals[key]++
	return f.vals[key], nil
}
func (f *fakeRedis) Expire(_ context.Context, key string, d time.Duration) error {
	f.expires[key] = d
	return nil
}
func (f *fakeRedis) Close() error { return nil }

func TestUsageStore_CountsPerDay(t *testing.T) {
	ctx := context.Background()
	fr := newFakeRedis()
	s := NewUsageStore(fr, "kling")
	day1 := time.Date(2025, 5, 1, 23, 59, 0, 0, time.UTC)
	day2 := day1.Add(2 * time.Minute)

	for i := 1; i <= 3; i++ {
		n, err := s.Increment(ctx, "ak-1", day1)
		if err != nil || n != i {
			t.Fatalf("Increment #%d = %d, %v", i, n, err)
		}
	}
	if n, _ := s.Load(ctx, "ak-1", day1); n != 3 {
		t.Fatalf("Load(day1) = %d, want 3", n)
	}
	if n, _ := s.Load(ctx, "ak-1", day2); n != 0 {
		t.Fatalf("Load(day2) = %d, want 0", n)
	}
	key := UsageKey("pipeline:usage:kling:", "ak-1", day1)
	if fr.expires[key] != usageTTL {
		t.Fatalf("first increment should set expiry, got %v", fr.expires[key])
	}
}

func TestUsageStore_LoadError(t *testing.T) {
	fr := newFakeRedis()
	fr.failGet = true
	if _, err := NewUsageStore(fr, "kling").Load(context.Background(), "ak-1", time.Now()); err == nil {
		t.Fatal("expected error")
	}
}
