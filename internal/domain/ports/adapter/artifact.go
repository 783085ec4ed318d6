package adapter

import "context"

// ArtifactSink mirrors downloaded artifacts to durable storage.
type ArtifactSink interface {
	// Put uploads localPath under the run and returns the remote URI.
	Put(ctx context.Context, runID, localPath string) (string, error)
}
