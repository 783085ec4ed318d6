package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"video-pipeline/internal/domain"
	"video-pipeline/internal/infra/metrics"
)

// fetchArtifact streams uri into a temp file next to destination and
// renames it into place only after a complete, synced write. On any error
// the temp file is removed and destination is left untouched.
func fetchArtifact(ctx context.Context, client *http.Client, provider, uri, destination string, header http.Header) (path string, err error) {
	defer func() { metrics.IncArtifactDownload(provider, err == nil) }()

	if strings.TrimSpace(uri) == "" || strings.TrimSpace(destination) == "" {
		return "", fmt.Errorf("%w: empty uri or destination", domain.ErrInvalidArgument)
	}
	dir := filepath.Dir(destination)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", downloadErr(provider, 0, "create destination dir", err)
	}

	src, status, err := openArtifact(ctx, client, uri, header)
	if err != nil {
		return "", downloadErr(provider, status, "open artifact", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(dir, filepath.Base(destination)+".tmp-*")
	if err != nil {
		return "", downloadErr(provider, 0, "create temp file", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, src); err != nil {
		return "", downloadErr(provider, 0, "copy artifact", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", downloadErr(provider, 0, "sync artifact", err)
	}
	if err := tmp.Close(); err != nil {
		return "", downloadErr(provider, 0, "close artifact", err)
	}
	if err := os.Rename(tmpName, destination); err != nil {
		return "", downloadErr(provider, 0, "rename artifact", err)
	}
	committed = true
	return destination, nil
}

// openArtifact supports http(s) and file URIs (the latter for the noop provider).
func openArtifact(ctx context.Context, client *http.Client, uri string, header http.Header) (io.ReadCloser, int, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, 0, err
	}
	switch u.Scheme {
	case "file":
		f, err := os.Open(u.Path)
		return f, 0, err
	case "http", "https":
	default:
		return nil, 0, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, 0, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, resp.StatusCode, errors.New(strings.TrimSpace(string(snippet)))
	}
	return resp.Body, resp.StatusCode, nil
}

func downloadErr(provider string, status int, what string, err error) error {
	return domain.NewProviderFailure(domain.ErrDownload, provider, status, 0, what+": "+err.Error(), err)
}
