package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"video-pipeline/internal/domain"
	"video-pipeline/internal/domain/model"
	"video-pipeline/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.VideoGenerator = (*KlingAdapter)(nil)

const (
	klingProvider     = "kling"
	klingText2Video   = "/v1/videos/text2video"
	klingDefaultModel = "kling-v2-master"
)

type KlingOptions struct {
	BaseURL        string // e.g., https://api.klingai.com
	Model          string
	HTTPClient     *http.Client
	TokenTTL       time.Duration
	SubmitAttempts int
	RetryBackoff   time.Duration
	Now            func() time.Time
	Logger         *zerolog.Logger
}

// KlingAdapter speaks the Kling text-to-video API. Credentials carry the
// access key as ID and the secret key as KeyMaterial.
type KlingAdapter struct {
	base   string
	model  string
	client *http.Client
	ttl    time.Duration
	retry  retryPolicy
	now    func() time.Time
	log    *zerolog.Logger
}

func NewKlingAdapter(opt KlingOptions) *KlingAdapter {
	if opt.BaseURL == "" {
		opt.BaseURL = "https://api.klingai.com"
	}
	if opt.Model == "" {
		opt.Model = klingDefaultModel
	}
	if opt.HTTPClient == nil {
		opt.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if opt.TokenTTL <= 0 {
		opt.TokenTTL = 30 * time.Minute
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.Logger == nil {
		l := zerolog.Nop()
		opt.Logger = &l
	}
	return &KlingAdapter{
		base:   strings.TrimRight(opt.BaseURL, "/"),
		model:  opt.Model,
		client: opt.HTTPClient,
		ttl:    opt.TokenTTL,
		retry:  newRetryPolicy(opt.SubmitAttempts, opt.RetryBackoff),
		now:    opt.Now,
		log:    opt.Logger,
	}
}

func (k *KlingAdapter) Name() string { return klingProvider }

// --- wire types ---

type klingCameraConfig struct {
	Horizontal float64 `json:"horizontal"`
	Vertical   float64 `json:"vertical"`
	Pan        float64 `json:"pan"`
	Tilt       float64 `json:"tilt"`
	Roll       float64 `json:"roll"`
	Zoom       float64 `json:"zoom"`
}

type klingCameraControl struct {
	Type   string            `json:"type"`
	Config klingCameraConfig `json:"config"`
}

type klingCreateRequest struct {
	ModelName      string              `json:"model_name"`
	Prompt         string              `json:"prompt"`
	NegativePrompt string              `json:"negative_prompt,omitempty"`
	Duration       string              `json:"duration"`
	AspectRatio    string              `json:"aspect_ratio"`
	Mode           string              `json:"mode"`
	CameraControl  *klingCameraControl `json:"camera_control,omitempty"`
}

type klingVideo struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Duration string `json:"duration"`
}

type klingTask struct {
	TaskID        string `json:"task_id"`
	TaskStatus    string `json:"task_status"`
	TaskStatusMsg string `json:"task_status_msg"`
	TaskResult    *struct {
		Videos []klingVideo `json:"videos"`
	} `json:"task_result,omitempty"`
}

type klingEnvelope struct {
	Code      int        `json:"code"`
	Message   string     `json:"message"`
	RequestID string     `json:"request_id"`
	Data      *klingTask `json:"data"`
}

// --- port ---

func (k *KlingAdapter) Submit(ctx context.Context, cred model.Credential, req model.GenerationRequest) (*model.GenerationJob, error) {
	body, err := k.buildCreateRequest(req)
	if err != nil {
		return nil, err
	}

	var env klingEnvelope
	err = k.retry.do(ctx, k.log, "kling submit", func() error {
		env = klingEnvelope{}
		return k.call(ctx, cred, http.MethodPost, klingText2Video, body, &env)
	})
	if err != nil {
		return nil, err
	}
	if env.Data == nil || env.Data.TaskID == "" {
		return nil, domain.NewProviderFailure(domain.ErrProvider, klingProvider, 0, env.Code, "submit response has no task_id", nil)
	}
	job := k.toJob(env.Data.TaskID, env.Data)
	k.log.Debug().Str("job_id", job.ID).Str("status", job.RawStatus).Str("request_id", env.RequestID).Msg("kling task created")
	return job, nil
}

func (k *KlingAdapter) Poll(ctx context.Context, cred model.Credential, jobID string) (*model.GenerationJob, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, fmt.Errorf("%w: empty job id", domain.ErrInvalidArgument)
	}
	var env klingEnvelope
	if err := k.call(ctx, cred, http.MethodGet, klingText2Video+"/"+url.PathEscape(jobID), nil, &env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return nil, domain.NewProviderFailure(domain.ErrProvider, klingProvider, 0, env.Code, "status response has no data", nil)
	}
	return k.toJob(jobID, env.Data), nil
}

// FetchArtifact downloads a result URL; Kling serves results from a public CDN.
func (k *KlingAdapter) FetchArtifact(ctx context.Context, _ model.Credential, resultURI, destination string) (string, error) {
	return fetchArtifact(ctx, k.client, klingProvider, resultURI, destination, nil)
}

// --- internal ---

func (k *KlingAdapter) buildCreateRequest(req model.GenerationRequest) (*klingCreateRequest, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Duration != "5" && req.Duration != "10" {
		return nil, fmt.Errorf("%w: kling duration must be \"5\" or \"10\", got %q", domain.ErrValidation, req.Duration)
	}
	mode := req.Mode
	if mode == "" {
		mode = "std"
	}
	modelName := req.Model
	if modelName == "" {
		modelName = k.model
	}
	body := &klingCreateRequest{
		ModelName:      modelName,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Duration:       req.Duration,
		AspectRatio:    req.AspectRatio,
		Mode:           mode,
	}
	// all-zero axes are rejected upstream: omit the block entirely
	if cam := req.Camera.Movement(); cam != nil {
		body.CameraControl = &klingCameraControl{
			Type: "simple",
			Config: klingCameraConfig{
				Horizontal: cam.Horizontal,
				Vertical:   cam.Vertical,
				Pan:        cam.Pan,
				Tilt:       cam.Tilt,
				Roll:       cam.Roll,
				Zoom:       cam.Zoom,
			},
		}
	}
	return body, nil
}

func (k *KlingAdapter) call(ctx context.Context, cred model.Credential, method, path string, in any, out *klingEnvelope) error {
	token, err := signKlingToken(cred.ID, cred.KeyMaterial, k.now(), k.ttl)
	if err != nil {
		return domain.NewProviderFailure(domain.ErrAuth, klingProvider, 0, 0, "sign token: "+err.Error(), err)
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("kling: encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, k.base+path, body)
	if err != nil {
		return fmt.Errorf("kling: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := k.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &transportFailure{ProviderFailure: domain.NewProviderFailure(domain.ErrTransport, klingProvider, 0, 0, err.Error(), err), beforeSend: isDialError(err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.NewProviderFailure(domain.ErrTransport, klingProvider, resp.StatusCode, 0, "read response: "+err.Error(), err)
	}
	decodeErr := json.Unmarshal(raw, out)

	if decodeErr == nil && out.Code != 0 {
		kind := classifyKlingCode(out.Code)
		f := domain.NewProviderFailure(kind, klingProvider, resp.StatusCode, out.Code, out.Message, nil)
		if errors.Is(kind, domain.ErrTransport) {
			// server-side codes are rejected requests, same as HTTP 5xx
			return &transportFailure{ProviderFailure: f, beforeSend: true}
		}
		return f
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		msg := out.Message
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		f := domain.NewProviderFailure(classifyKlingHTTP(resp.StatusCode), klingProvider, resp.StatusCode, 0, msg, nil)
		if resp.StatusCode >= http.StatusInternalServerError {
			return &transportFailure{ProviderFailure: f, beforeSend: true}
		}
		return f
	}
	if decodeErr != nil {
		return domain.NewProviderFailure(domain.ErrProvider, klingProvider, resp.StatusCode, 0, "malformed response: "+decodeErr.Error(), decodeErr)
	}
	return nil
}

// classifyKlingCode maps Kling application codes onto the error taxonomy:
// 1000-1099 authentication, 1200-1299 invalid request parameters,
// 5000+ server side (retryable), everything else a provider failure.
func classifyKlingCode(code int) error {
	switch {
	case code >= 1000 && code < 1100:
		return domain.ErrAuth
	case code >= 1200 && code < 1300:
		return domain.ErrValidation
	case code >= 5000:
		return domain.ErrTransport
	default:
		return domain.ErrProvider
	}
}

func classifyKlingHTTP(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.ErrAuth
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return domain.ErrValidation
	case status >= http.StatusInternalServerError:
		return domain.ErrTransport
	default:
		return domain.ErrProvider
	}
}

func (k *KlingAdapter) toJob(jobID string, t *klingTask) *model.GenerationJob {
	if t.TaskID != "" {
		jobID = t.TaskID
	}
	raw := t.TaskStatus
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "submitted":
		return model.PendingJob(jobID, klingProvider, model.JobStatusSubmitted, raw)
	case "processing":
		return model.PendingJob(jobID, klingProvider, model.JobStatusProcessing, raw)
	case "succeed", "succeeded":
		if t.TaskResult != nil {
			for _, v := range t.TaskResult.Videos {
				if v.URL != "" {
					return model.SucceededJob(jobID, klingProvider, v.URL)
				}
			}
		}
		return model.FailedJob(jobID, klingProvider, "task succeeded without a video url")
	case "failed":
		msg := t.TaskStatusMsg
		if msg == "" {
			msg = "generation failed"
		}
		return model.FailedJob(jobID, klingProvider, msg)
	default:
		flagUnknownStatus(k.log, klingProvider, jobID, raw)
		return model.PendingJob(jobID, klingProvider, model.JobStatusProcessing, raw)
	}
}

// transportFailure marks whether a failed request can be retried without
// risking a second job: true when it never reached the provider or the
// provider answered with a server error.
type transportFailure struct {
	*domain.ProviderFailure
	beforeSend bool
}

func (t *transportFailure) Unwrap() error { return t.ProviderFailure }

func safeToResubmit(err error) bool {
	var tf *transportFailure
	return errors.As(err, &tf) && tf.beforeSend
}
