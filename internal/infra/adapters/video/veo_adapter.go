package video

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"video-pipeline/internal/domain"
	"video-pipeline/internal/domain/model"
	"video-pipeline/internal/domain/ports/adapter"
)

var _ adapter.VideoGenerator = (*VeoAdapter)(nil)

const (
	veoProvider     = "veo"
	veoDefaultModel = "veo-3.0-generate-001"
)

type VeoOptions struct {
	BaseURL        string
	Model          string
	HTTPClient     *http.Client // used for artifact downloads
	SubmitAttempts int
	RetryBackoff   time.Duration
	Logger         *zerolog.Logger
}

// VeoAdapter drives Google's Veo models through the genai SDK. Each pooled
// credential is a Gemini API key; a client is built lazily per key.
type VeoAdapter struct {
	baseURL string
	model   string
	http    *http.Client
	retry   retryPolicy
	log     *zerolog.Logger

	mu      sync.Mutex
	clients map[string]*genai.Client
}

func NewVeoAdapter(opt VeoOptions) *VeoAdapter {
	if opt.Model == "" {
		opt.Model = veoDefaultModel
	}
	if opt.HTTPClient == nil {
		opt.HTTPClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if opt.Logger == nil {
		l := zerolog.Nop()
		opt.Logger = &l
	}
	return &VeoAdapter{
		baseURL: opt.BaseURL,
		model:   opt.Model,
		http:    opt.HTTPClient,
		retry:   newRetryPolicy(opt.SubmitAttempts, opt.RetryBackoff),
		log:     opt.Logger,
		clients: make(map[string]*genai.Client),
	}
}

func (v *VeoAdapter) Name() string { return veoProvider }

func (v *VeoAdapter) client(ctx context.Context, cred model.Credential) (*genai.Client, error) {
	if strings.TrimSpace(cred.KeyMaterial) == "" {
		return nil, domain.NewProviderFailure(domain.ErrAuth, veoProvider, 0, 0, "empty api key for "+cred.ID, nil)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if c, ok := v.clients[cred.ID]; ok {
		return c, nil
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cred.KeyMaterial,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: v.baseURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("veo: new client: %w", err)
	}
	v.clients[cred.ID] = c
	return c, nil
}

func (v *VeoAdapter) Submit(ctx context.Context, cred model.Credential, req model.GenerationRequest) (*model.GenerationJob, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	secs, _ := req.DurationSeconds()
	c, err := v.client(ctx, cred)
	if err != nil {
		return nil, err
	}
	if req.Camera.Movement() != nil {
		v.log.Debug().Str("credential", cred.ID).Msg("veo has no camera control, ignoring camera axes")
	}

	d := int32(secs)
	cfg := &genai.GenerateVideosConfig{
		NumberOfVideos:  1,
		DurationSeconds: &d,
		AspectRatio:     req.AspectRatio,
		NegativePrompt:  req.NegativePrompt,
	}
	modelName := req.Model
	if modelName == "" {
		modelName = v.model
	}

	var op *genai.GenerateVideosOperation
	err = v.retry.do(ctx, v.log, "veo submit", func() error {
		var callErr error
		op, callErr = c.Models.GenerateVideos(ctx, modelName, req.Prompt, nil, cfg)
		return classifyGenAI(ctx, callErr)
	})
	if err != nil {
		return nil, err
	}
	if op == nil || op.Name == "" {
		return nil, domain.NewProviderFailure(domain.ErrProvider, veoProvider, 0, 0, "operation has no name", nil)
	}
	return v.toJob(op), nil
}

func (v *VeoAdapter) Poll(ctx context.Context, cred model.Credential, jobID string) (*model.GenerationJob, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, fmt.Errorf("%w: empty job id", domain.ErrInvalidArgument)
	}
	c, err := v.client(ctx, cred)
	if err != nil {
		return nil, err
	}
	op, err := c.Operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: jobID}, nil)
	if err != nil {
		return nil, classifyGenAI(ctx, err)
	}
	if op.Name == "" {
		op.Name = jobID
	}
	return v.toJob(op), nil
}

// FetchArtifact downloads the file URI; Gemini file URIs need the API key header.
func (v *VeoAdapter) FetchArtifact(ctx context.Context, cred model.Credential, resultURI, destination string) (string, error) {
	h := http.Header{}
	if cred.KeyMaterial != "" {
		h.Set("x-goog-api-key", cred.KeyMaterial)
	}
	return fetchArtifact(ctx, v.http, veoProvider, resultURI, destination, h)
}

func (v *VeoAdapter) toJob(op *genai.GenerateVideosOperation) *model.GenerationJob {
	if !op.Done {
		return model.PendingJob(op.Name, veoProvider, model.JobStatusProcessing, "running")
	}
	if op.Error != nil {
		msg, _ := op.Error["message"].(string)
		if msg == "" {
			msg = fmt.Sprint(op.Error)
		}
		return model.FailedJob(op.Name, veoProvider, msg)
	}
	if r := op.Response; r != nil {
		for _, g := range r.GeneratedVideos {
			if g != nil && g.Video != nil && g.Video.URI != "" {
				return model.SucceededJob(op.Name, veoProvider, g.Video.URI)
			}
		}
		if len(r.RAIMediaFilteredReasons) > 0 {
			return model.FailedJob(op.Name, veoProvider, "filtered: "+strings.Join(r.RAIMediaFilteredReasons, "; "))
		}
	}
	return model.FailedJob(op.Name, veoProvider, "operation finished without a video")
}

// classifyGenAI maps SDK errors onto the provider taxonomy.
func classifyGenAI(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		kind := domain.ErrProvider
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			kind = domain.ErrAuth
		case apiErr.Code == http.StatusBadRequest:
			kind = domain.ErrValidation
		case apiErr.Code >= http.StatusInternalServerError:
			f := domain.NewProviderFailure(domain.ErrTransport, veoProvider, apiErr.Code, 0, apiErr.Message, err)
			return &transportFailure{ProviderFailure: f, beforeSend: true}
		}
		return domain.NewProviderFailure(kind, veoProvider, apiErr.Code, 0, apiErr.Message, err)
	}
	return &transportFailure{
		ProviderFailure: domain.NewProviderFailure(domain.ErrTransport, veoProvider, 0, 0, err.Error(), err),
		beforeSend:      isDialError(err),
	}
}
