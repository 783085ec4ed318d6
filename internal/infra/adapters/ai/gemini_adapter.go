package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"video-pipeline/internal/domain"
	"video-pipeline/internal/domain/model"
	"video-pipeline/internal/domain/ports/adapter"
	"video-pipeline/internal/infra/metrics"
)

var _ adapter.AIServiceAdapter = (*GeminiAdapter)(nil)

const geminiProvider = "gemini"

// GeminiAdapter calls Gemini through the official SDK, rotating API keys
// through a credential pool. One client is kept per key.
type GeminiAdapter struct {
	pool         adapter.CredentialPool
	baseURL      string
	defaultModel string
	maxOut       int

	mu      sync.Mutex
	clients map[string]*genai.Client
}

func NewGeminiAdapter(pool adapter.CredentialPool, baseURL, defaultModel string, maxOut int) (*GeminiAdapter, error) {
	if pool == nil {
		return nil, errors.New("gemini: credential pool is required")
	}
	return &GeminiAdapter{
		pool:         pool,
		baseURL:      baseURL,
		defaultModel: defaultModel,
		maxOut:       maxOut,
		clients:      make(map[string]*genai.Client),
	}, nil
}

func (g *GeminiAdapter) ListModels(ctx context.Context) ([]string, error) {
	if g.defaultModel == "" {
		return nil, nil
	}
	return []string{g.defaultModel}, nil
}

func (g *GeminiAdapter) Chat(ctx context.Context, req adapter.ChatRequest) (adapter.ChatResponse, error) {
	if len(req.Messages) == 0 {
		return adapter.ChatResponse{}, fmt.Errorf("%w: gemini: no messages", domain.ErrInvalidArgument)
	}
	modelName := modelOrDefault(req.Model, g.defaultModel)

	cred, err := g.pool.Acquire(ctx)
	if err != nil {
		return adapter.ChatResponse{}, err
	}
	c, err := g.client(ctx, cred)
	if err != nil {
		g.pool.Release(ctx, cred)
		return adapter.ChatResponse{}, err
	}

	system, contents := toGenAIContents(req.Messages)
	cfg := &genai.GenerateContentConfig{SystemInstruction: system}
	if n := firstPositive(req.MaxOutputTokens, g.maxOut); n > 0 {
		cfg.MaxOutputTokens = int32(n)
	}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		cfg.Temperature = &t
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	start := time.Now()
	resp, err := c.Models.GenerateContent(ctx, modelName, contents, cfg)
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		err = classifyGenAI(ctx, err)
		g.report(ctx, cred, err)
		metrics.ObserveChatUsage(geminiProvider, modelName, 0, 0, latency, false)
		return adapter.ChatResponse{}, err
	}
	g.pool.ReportSuccess(ctx, cred)

	out := adapter.ChatResponse{Text: resp.Text()}
	if resp.UsageMetadata != nil {
		out.Usage = adapter.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	metrics.ObserveChatUsage(geminiProvider, modelName, out.Usage.PromptTokens, out.Usage.CompletionTokens, latency, true)
	if strings.TrimSpace(out.Text) == "" {
		return out, domain.NewProviderFailure(domain.ErrProvider, geminiProvider, 0, 0, "empty response", nil)
	}
	return out, nil
}

// --- internal ---

func (g *GeminiAdapter) client(ctx context.Context, cred model.Credential) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients[cred.ID]; ok {
		return c, nil
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cred.KeyMaterial,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: g.baseURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	g.clients[cred.ID] = c
	return c, nil
}

// report charges auth and provider failures to the key; anything else
// says nothing about the key and only returns the reservation.
func (g *GeminiAdapter) report(ctx context.Context, cred model.Credential, err error) {
	if errors.Is(err, domain.ErrAuth) || errors.Is(err, domain.ErrProvider) {
		g.pool.ReportFailure(ctx, cred)
		return
	}
	g.pool.Release(ctx, cred)
}

func toGenAIContents(msgs []adapter.Message) (*genai.Content, []*genai.Content) {
	var system []string
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			system = append(system, m.Content)
		case "assistant", "model":
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) == 0 {
		return nil, out
	}
	return genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser), out
}

func classifyGenAI(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return domain.NewProviderFailure(domain.ErrTransport, geminiProvider, 0, 0, err.Error(), err)
	}
	kind := domain.ErrProvider
	switch {
	case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
		kind = domain.ErrAuth
	case apiErr.Code == http.StatusBadRequest:
		kind = domain.ErrValidation
	case apiErr.Code >= http.StatusInternalServerError:
		kind = domain.ErrTransport
	}
	return domain.NewProviderFailure(kind, geminiProvider, apiErr.Code, 0, apiErr.Message, err)
}

func modelOrDefault(model, def string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return def
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
