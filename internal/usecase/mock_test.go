package usecase_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"video-pipeline/internal/domain"
	"video-pipeline/internal/domain/model"
	"video-pipeline/internal/domain/ports/adapter"
)

// ---- AI ----

// scriptedAI answers each task with a fixed reply and counts calls.
type scriptedAI struct {
	mu      sync.Mutex
	replies map[string]string
	err     error
	calls   map[string]int
	last    adapter.ChatRequest
}

func newScriptedAI(replies map[string]string) *scriptedAI {
	return &scriptedAI{replies: replies, calls: map[string]int{}}
}

func (s *scriptedAI) ListModels(context.Context) ([]string, error) { return []string{"scripted"}, nil }

func (s *scriptedAI) Chat(_ context.Context, req adapter.ChatRequest) (adapter.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[req.Task]++
	s.last = req
	if s.err != nil {
		return adapter.ChatResponse{}, s.err
	}
	return adapter.ChatResponse{Text: s.replies[req.Task]}, nil
}

// countingAI wraps another adapter and counts calls per task.
type countingAI struct {
	inner adapter.AIServiceAdapter
	mu    sync.Mutex
	calls map[string]int
}

func newCountingAI(inner adapter.AIServiceAdapter) *countingAI {
	return &countingAI{inner: inner, calls: map[string]int{}}
}

func (c *countingAI) ListModels(ctx context.Context) ([]string, error) { return c.inner.ListModels(ctx) }

func (c *countingAI) Chat(ctx context.Context, req adapter.ChatRequest) (adapter.ChatResponse, error) {
	c.mu.Lock()
	c.calls[req.Task]++
	c.mu.Unlock()
	return c.inner.Chat(ctx, req)
}

func (c *countingAI) count(task string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[task]
}

// ---- credential pool ----

// recPool hands out numbered credentials and records how each was settled.
type recPool struct {
	mu           sync.Mutex
	exhaustAfter int // 0 means never
	acquired     int
	success      int
	failure      int
	release      int
}

func (p *recPool) Name() string { return "test" }

func (p *recPool) Acquire(context.Context) (model.Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exhaustAfter > 0 && p.acquired >= p.exhaustAfter {
		return model.Credential{}, domain.ErrPoolExhausted
	}
	p.acquired++
	return model.Credential{ID: fmt.Sprintf("k%d", p.acquired), KeyMaterial: "secret"}, nil
}

func (p *recPool) ReportSuccess(context.Context, model.Credential) {
	p.mu.Lock()
	p.success++
	p.mu.Unlock()
}

func (p *recPool) ReportFailure(context.Context, model.Credential) {
	p.mu.Lock()
	p.failure++
	p.mu.Unlock()
}

func (p *recPool) Release(context.Context, model.Credential) {
	p.mu.Lock()
	p.release++
	p.mu.Unlock()
}

func (p *recPool) Stats() []model.Credential { return nil }

// settled is the number of acquisitions that were reported back.
func (p *recPool) settled() int { return p.success + p.failure + p.release }

// ---- video provider ----

// fakeGen decides each job's fate from a keyword in the prompt text:
// "auth" is rejected at submit, "fails" ends as a failed job and
// "broken" succeeds but cannot be downloaded. Anything else succeeds.
type fakeGen struct {
	mu      sync.Mutex
	seq     int
	prompts map[string]string // job id -> prompt
	submits int
}

func newFakeGen() *fakeGen { return &fakeGen{prompts: map[string]string{}} }

func (g *fakeGen) Name() string { return "fake" }

func (g *fakeGen) Submit(_ context.Context, _ model.Credential, req model.GenerationRequest) (*model.GenerationJob, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submits++
	if strings.Contains(req.Prompt, "auth") {
		return nil, domain.NewProviderFailure(domain.ErrAuth, "fake", 401, 0, "access key not found", nil)
	}
	g.seq++
	id := fmt.Sprintf("job-%d", g.seq)
	g.prompts[id] = req.Prompt
	return model.PendingJob(id, "fake", model.JobStatusSubmitted, "submitted"), nil
}

func (g *fakeGen) Poll(_ context.Context, _ model.Credential, jobID string) (*model.GenerationJob, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.prompts[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if strings.Contains(p, "fails") {
		return model.FailedJob(jobID, "fake", "content policy"), nil
	}
	if strings.Contains(p, "broken") {
		return model.SucceededJob(jobID, "fake", "https://cdn.invalid/broken.mp4"), nil
	}
	return model.SucceededJob(jobID, "fake", "https://cdn.invalid/"+jobID+".mp4"), nil
}

func (g *fakeGen) FetchArtifact(_ context.Context, _ model.Credential, uri, destination string) (string, error) {
	if strings.HasSuffix(uri, "broken.mp4") {
		return "", domain.NewProviderFailure(domain.ErrDownload, "fake", 404, 0, "artifact gone", nil)
	}
	if err := os.WriteFile(destination, []byte("mp4"), 0o644); err != nil {
		return "", err
	}
	return destination, nil
}

// ---- artifact sink ----

type memSink struct {
	mu   sync.Mutex
	puts []string
}

func (s *memSink) Put(_ context.Context, runID, localPath string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts = append(s.puts, localPath)
	return "s3://bucket/" + runID + "/" + localPath[strings.LastIndex(localPath, "/")+1:], nil
}
