package model

import (
	"fmt"
	"strconv"
	"strings"

	"video-pipeline/internal/domain"
)

type JobStatus string

const (
	JobStatusSubmitted  JobStatus = "submitted"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
)

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// GenerationJob is one outstanding request to a video provider.
// ResultURI is set only when succeeded, ErrorMessage only when failed.
type GenerationJob struct {
	ID           string    `json:"job_id"`
	Provider     string    `json:"provider,omitempty"`
	Status       JobStatus `json:"status"`
	RawStatus    string    `json:"raw_status,omitempty"`
	ResultURI    string    `json:"result_uri,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

func PendingJob(id, provider string, status JobStatus, raw string) *GenerationJob {
	return &GenerationJob{ID: id, Provider: provider, Status: status, RawStatus: raw}
}

func SucceededJob(id, provider, resultURI string) *GenerationJob {
	return &GenerationJob{ID: id, Provider: provider, Status: JobStatusSucceeded, RawStatus: "succeed", ResultURI: resultURI}
}

func FailedJob(id, provider, message string) *GenerationJob {
	return &GenerationJob{ID: id, Provider: provider, Status: JobStatusFailed, RawStatus: "failed", ErrorMessage: message}
}

func (j *GenerationJob) IsTerminal() bool { return j != nil && j.Status.IsTerminal() }

// TimeoutMessagePrefix is the raw status of synthetic timeout jobs and the
// first word of their message.
const TimeoutMessagePrefix = "timeout"

// TimedOutJob is the synthetic failure reported when a local wait gives up.
// The remote job may still complete and can be polled again by ID.
func TimedOutJob(id, provider, message string) *GenerationJob {
	return &GenerationJob{ID: id, Provider: provider, Status: JobStatusFailed, RawStatus: TimeoutMessagePrefix, ErrorMessage: message}
}

// IsTimedOut reports whether the job is a synthetic timeout failure.
func (j *GenerationJob) IsTimedOut() bool {
	return j != nil && j.Status == JobStatusFailed && j.RawStatus == TimeoutMessagePrefix
}

// GenerationRequest is the provider-agnostic submit payload.
type GenerationRequest struct {
	Model          string
	Prompt         string
	NegativePrompt string
	Camera         *CameraControl // nil or no movement means "omit"
	Duration       string         // seconds, as the providers expect a string
	AspectRatio    string
	Mode           string
}

var (
	validAspectRatios = map[string]struct{}{"16:9": {}, "9:16": {}, "1:1": {}}
	validModes        = map[string]struct{}{"std": {}, "pro": {}}
)

// Validate applies the checks every provider shares. Provider-specific limits
// (e.g. Kling accepting only 5 or 10 seconds) are enforced by the adapters.
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: prompt is empty", domain.ErrValidation)
	}
	if _, ok := validAspectRatios[r.AspectRatio]; !ok {
		return fmt.Errorf("%w: unsupported aspect ratio %q", domain.ErrValidation, r.AspectRatio)
	}
	if r.Mode != "" {
		if _, ok := validModes[r.Mode]; !ok {
			return fmt.Errorf("%w: unsupported mode %q", domain.ErrValidation, r.Mode)
		}
	}
	if _, err := r.DurationSeconds(); err != nil {
		return err
	}
	if r.Camera != nil {
		if err := r.Camera.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// DurationSeconds parses Duration.
func (r GenerationRequest) DurationSeconds() (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(r.Duration))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: invalid duration %q", domain.ErrValidation, r.Duration)
	}
	return n, nil
}
