package adapter

import (
	"context"

	"video-pipeline/internal/domain/model"
)

// CredentialPool hands out provider credentials under quota. Every
// successful Acquire must be followed by exactly one of ReportSuccess,
// ReportFailure or Release for the same credential.
type CredentialPool interface {
	Name() string
	Acquire(ctx context.Context) (model.Credential, error)
	ReportSuccess(ctx context.Context, cred model.Credential)
	ReportFailure(ctx context.Context, cred model.Credential)
	Release(ctx context.Context, cred model.Credential)
	Stats() []model.Credential
}
