package storage

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"video-pipeline/internal/config"
	"video-pipeline/internal/domain/ports/adapter"
)

var _ adapter.ArtifactSink = (*S3Sink)(nil)

type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink mirrors artifacts to <bucket>/<prefix>/<runID>/videos/<file>.
type S3Sink struct {
	client putObjectAPI
	bucket string
	prefix string
	log    *zerolog.Logger
}

// NewS3Sink loads the default AWS credential chain. Endpoint and path style
// allow S3-compatible stores such as MinIO.
func NewS3Sink(ctx context.Context, cfg config.S3Config, logger *zerolog.Logger) (*S3Sink, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newS3Sink(client, cfg.Bucket, cfg.Prefix, logger), nil
}

func newS3Sink(client putObjectAPI, bucket, prefix string, logger *zerolog.Logger) *S3Sink {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &S3Sink{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/"), log: logger}
}

func (s *S3Sink) Put(ctx context.Context, runID, localPath string) (string, error) {
	key := path.Join(s.prefix, runID, "videos", filepath.Base(localPath))

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	contentType := contentTypeOf(localPath)
	s.log.Debug().Str("bucket", s.bucket).Str("key", key).Msg("uploading artifact to S3")
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload artifact to S3: %w", err)
	}
	uri := "s3://" + s.bucket + "/" + key
	s.log.Info().Str("uri", uri).Msg("artifact mirrored")
	return uri, nil
}

func contentTypeOf(p string) string {
	ext := strings.ToLower(filepath.Ext(p))
	if ext == ".mp4" {
		return "video/mp4"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
