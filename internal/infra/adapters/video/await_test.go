package video

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"video-pipeline/internal/domain"
	"video-pipeline/internal/domain/model"
)

type scriptedPoller struct {
	mu    sync.Mutex
	steps []func() (*model.GenerationJob, error)
	calls int
}

func (s *scriptedPoller) Poll(_ context.Context, _ model.Credential, jobID string) (*model.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	return s.steps[i]()
}

func processing() (*model.GenerationJob, error) {
	return model.PendingJob("J", "fake", model.JobStatusProcessing, "processing"), nil
}

func TestAwaitCompletion_ZeroTimeoutPollsOnce(t *testing.T) {
	p := &scriptedPoller{steps: []func() (*model.GenerationJob, error){processing}}

	job, err := AwaitCompletion(context.Background(), p, testCred, "J", time.Millisecond, 0, nil)
	if err != nil {
		t.Fatalf("timeout must not be an error: %v", err)
	}
	if p.calls != 1 {
		t.Fatalf("polls = %d, want 1", p.calls)
	}
	if !job.IsTimedOut() || job.Status != model.JobStatusFailed || job.ID != "J" {
		t.Fatalf("want synthetic timeout job, got %+v", job)
	}
}

func TestAwaitCompletion_ReturnsTerminalJob(t *testing.T) {
	p := &scriptedPoller{steps: []func() (*model.GenerationJob, error){
		processing,
		processing,
		func() (*model.GenerationJob, error) { return model.SucceededJob("J", "fake", "https://cdn/x.mp4"), nil },
	}}

	job, err := AwaitCompletion(context.Background(), p, testCred, "J", time.Millisecond, time.Minute, nil)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if job.Status != model.JobStatusSucceeded || p.calls != 3 {
		t.Fatalf("job=%+v calls=%d", job, p.calls)
	}
}

func TestAwaitCompletion_RetriesTransportErrors(t *testing.T) {
	p := &scriptedPoller{steps: []func() (*model.GenerationJob, error){
		func() (*model.GenerationJob, error) {
			return nil, domain.NewProviderFailure(domain.ErrTransport, "fake", 0, 0, "connection reset", nil)
		},
		func() (*model.GenerationJob, error) { return model.FailedJob("J", "fake", "nsfw"), nil },
	}}

	job, err := AwaitCompletion(context.Background(), p, testCred, "J", time.Millisecond, time.Minute, nil)
	if err != nil {
		t.Fatalf("transport errors should be retried: %v", err)
	}
	if job.Status != model.JobStatusFailed || job.ErrorMessage != "nsfw" || job.IsTimedOut() {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestAwaitCompletion_ReturnsOtherErrors(t *testing.T) {
	p := &scriptedPoller{steps: []func() (*model.GenerationJob, error){
		func() (*model.GenerationJob, error) {
			return nil, domain.NewProviderFailure(domain.ErrAuth, "fake", 401, 0, "bad key", nil)
		},
	}}

	_, err := AwaitCompletion(context.Background(), p, testCred, "J", time.Millisecond, time.Minute, nil)
	if !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("want ErrAuth, got %v", err)
	}
}

func TestAwaitCompletion_StopsOnCancel(t *testing.T) {
	p := &scriptedPoller{steps: []func() (*model.GenerationJob, error){processing}}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := AwaitCompletion(ctx, p, testCred, "J", 5*time.Millisecond, time.Hour, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestAwaitCompletion_TimesOutAfterDeadline(t *testing.T) {
	p := &scriptedPoller{steps: []func() (*model.GenerationJob, error){processing}}

	job, err := AwaitCompletion(context.Background(), p, testCred, "J", 5*time.Millisecond, 30*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if !job.IsTimedOut() {
		t.Fatalf("want timeout, got %+v", job)
	}
	if p.calls < 2 {
		t.Fatalf("expected several polls before timing out, got %d", p.calls)
	}
}
