package video

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"video-pipeline/internal/domain"
	"video-pipeline/internal/domain/model"
	"video-pipeline/internal/domain/ports/adapter"
)

var _ adapter.VideoGenerator = (*NoopVideoAdapter)(nil)

const noopProvider = "noop"

// NoopVideoAdapter is an offline provider for dev mode and tests. Jobs
// succeed after a fixed number of polls and point at a small local file.
type NoopVideoAdapter struct {
	dir           string
	pollsToFinish int

	mu    sync.Mutex
	seq   int
	polls map[string]int
}

func NewNoopVideoAdapter(artifactDir string, pollsToFinish int) *NoopVideoAdapter {
	if artifactDir == "" {
		artifactDir = filepath.Join(os.TempDir(), "video-pipeline-noop")
	}
	if pollsToFinish < 1 {
		pollsToFinish = 1
	}
	return &NoopVideoAdapter{dir: artifactDir, pollsToFinish: pollsToFinish, polls: make(map[string]int)}
}

func (n *NoopVideoAdapter) Name() string { return noopProvider }

func (n *NoopVideoAdapter) Submit(_ context.Context, cred model.Credential, req model.GenerationRequest) (*model.GenerationJob, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	n.mu.Lock()
	n.seq++
	id := fmt.Sprintf("noop-%04d", n.seq)
	n.polls[id] = 0
	n.mu.Unlock()

	if err := os.MkdirAll(n.dir, 0o755); err != nil {
		return nil, domain.NewProviderFailure(domain.ErrProvider, noopProvider, 0, 0, err.Error(), err)
	}
	body := fmt.Sprintf("noop video\njob=%s\ncredential=%s\nprompt=%s\n", id, cred.ID, model.PromptPreview(req.Prompt))
	if err := os.WriteFile(n.artifactPath(id), []byte(body), 0o644); err != nil {
		return nil, domain.NewProviderFailure(domain.ErrProvider, noopProvider, 0, 0, err.Error(), err)
	}
	return model.PendingJob(id, noopProvider, model.JobStatusSubmitted, "submitted"), nil
}

func (n *NoopVideoAdapter) Poll(_ context.Context, _ model.Credential, jobID string) (*model.GenerationJob, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	count, ok := n.polls[jobID]
	if !ok {
		return nil, domain.NewProviderFailure(domain.ErrProvider, noopProvider, 0, 0, "unknown job "+jobID, nil)
	}
	count++
	n.polls[jobID] = count
	if count < n.pollsToFinish {
		return model.PendingJob(jobID, noopProvider, model.JobStatusProcessing, "processing"), nil
	}
	u := url.URL{Scheme: "file", Path: n.artifactPath(jobID)}
	return model.SucceededJob(jobID, noopProvider, u.String()), nil
}

func (n *NoopVideoAdapter) FetchArtifact(ctx context.Context, _ model.Credential, resultURI, destination string) (string, error) {
	return fetchArtifact(ctx, nil, noopProvider, resultURI, destination, nil)
}

func (n *NoopVideoAdapter) artifactPath(id string) string {
	abs, err := filepath.Abs(filepath.Join(n.dir, id+".mp4"))
	if err != nil {
		return filepath.Join(n.dir, id+".mp4")
	}
	return abs
}
