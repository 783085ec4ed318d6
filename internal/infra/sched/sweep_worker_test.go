package sched

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type countingSweeper struct {
	mu      sync.Mutex
	calls   int
	cutoffs []time.Time
}

func (s *countingSweeper) Sweep(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.cutoffs = append(s.cutoffs, before)
	return 1, nil
}

func (s *countingSweeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestSweepWorker_TicksUntilCancelled(t *testing.T) {
	target := &countingSweeper{}
	w := NewSweepWorker(5*time.Millisecond, time.Hour, target, nil)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for target.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("worker never ticked")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}

	target.mu.Lock()
	defer target.mu.Unlock()
	if !target.cutoffs[0].Equal(fixed.Add(-time.Hour)) {
		t.Fatalf("cutoff = %v", target.cutoffs[0])
	}
}
