package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3 struct {
	key, bucket, contentType string
	body                     []byte
	err                      error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket, f.key, f.contentType = *in.Bucket, *in.Key, *in.ContentType
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Sink_Put(t *testing.T) {
	local := filepath.Join(t.TempDir(), "S01.mp4")
	if err := os.WriteFile(local, []byte("mp4"), 0o644); err != nil {
		t.Fatal(err)
	}
	fake := &fakeS3{}
	sink := newS3Sink(fake, "media", "/pipeline/", nil)

	uri, err := sink.Put(context.Background(), "run-1", local)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if uri != "s3://media/pipeline/run-1/videos/S01.mp4" {
		t.Fatalf("uri = %q", uri)
	}
	if fake.key != "pipeline/run-1/videos/S01.mp4" || string(fake.body) != "mp4" || fake.contentType != "video/mp4" {
		t.Fatalf("unexpected upload %+v", fake)
	}
}

func TestS3Sink_PutError(t *testing.T) {
	local := filepath.Join(t.TempDir(), "S01.mp4")
	_ = os.WriteFile(local, []byte("mp4"), 0o644)
	sink := newS3Sink(&fakeS3{err: errors.New("denied")}, "media", "", nil)
	if _, err := sink.Put(context.Background(), "run-1", local); err == nil {
		t.Fatal("expected error")
	}
	if _, err := sink.Put(context.Background(), "run-1", filepath.Join(t.TempDir(), "missing.mp4")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
