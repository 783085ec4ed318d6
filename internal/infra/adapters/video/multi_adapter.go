package video

import (
	"context"
	"fmt"
	"strings"

	"video-pipeline/internal/domain"
	"video-pipeline/internal/domain/model"
	"video-pipeline/internal/domain/ports/adapter"
)

var _ adapter.VideoGenerator = (*MultiAdapter)(nil)

// MultiAdapter routes requests to a provider by model name, and polls by the
// shape of the job ID. Veo operations are resource names
// ("models/.../operations/..."), noop jobs start with "noop-", anything else
// belongs to the default provider.
type MultiAdapter struct {
	defaultProvider string
	byProvider      map[string]adapter.VideoGenerator
}

func NewMultiAdapter(defaultProvider string, generators ...adapter.VideoGenerator) *MultiAdapter {
	m := &MultiAdapter{
		defaultProvider: strings.ToLower(defaultProvider),
		byProvider:      make(map[string]adapter.VideoGenerator, len(generators)),
	}
	for _, g := range generators {
		if g != nil {
			m.byProvider[g.Name()] = g
		}
	}
	return m
}

func (m *MultiAdapter) Name() string { return m.defaultProvider }

// ProviderForModel returns the provider name that will handle model.
func (m *MultiAdapter) ProviderForModel(modelName string) string {
	l := strings.ToLower(modelName)
	switch {
	case strings.HasPrefix(l, "kling"):
		return klingProvider
	case strings.HasPrefix(l, "veo"):
		return veoProvider
	case strings.HasPrefix(l, "noop"):
		return noopProvider
	default:
		return m.defaultProvider
	}
}

// ProviderForJob returns the provider name that issued jobID.
func (m *MultiAdapter) ProviderForJob(jobID string) string {
	switch {
	case strings.Contains(jobID, "/operations/"):
		return veoProvider
	case strings.HasPrefix(jobID, "noop-"):
		return noopProvider
	default:
		return m.defaultProvider
	}
}

func (m *MultiAdapter) pick(provider string) (adapter.VideoGenerator, error) {
	if g := m.byProvider[provider]; g != nil {
		return g, nil
	}
	return nil, fmt.Errorf("%w: video provider %q is not configured", domain.ErrInvalidArgument, provider)
}

func (m *MultiAdapter) Submit(ctx context.Context, cred model.Credential, req model.GenerationRequest) (*model.GenerationJob, error) {
	g, err := m.pick(m.ProviderForModel(req.Model))
	if err != nil {
		return nil, err
	}
	return g.Submit(ctx, cred, req)
}

func (m *MultiAdapter) Poll(ctx context.Context, cred model.Credential, jobID string) (*model.GenerationJob, error) {
	g, err := m.pick(m.ProviderForJob(jobID))
	if err != nil {
		return nil, err
	}
	return g.Poll(ctx, cred, jobID)
}

// FetchArtifact goes to the default provider unless the URI is a local file
// and the noop provider is configured.
func (m *MultiAdapter) FetchArtifact(ctx context.Context, cred model.Credential, resultURI, destination string) (string, error) {
	provider := m.defaultProvider
	if _, ok := m.byProvider[noopProvider]; ok && strings.HasPrefix(resultURI, "file://") {
		provider = noopProvider
	}
	g, err := m.pick(provider)
	if err != nil {
		return "", err
	}
	return g.FetchArtifact(ctx, cred, resultURI, destination)
}
