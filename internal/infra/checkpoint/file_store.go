package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"video-pipeline/internal/domain"
	"video-pipeline/internal/domain/model"
	"video-pipeline/internal/domain/ports/repository"
	"video-pipeline/internal/infra/metrics"
)

var _ repository.CheckpointStore = (*FileStore)(nil)

const (
	checkpointDir = "checkpoints"
	historyDir    = "history"
)

// FileStore keeps one JSON file per stage under <root>/<runID>/checkpoints.
// Files are replaced by rename, never edited in place.
type FileStore struct {
	root   string
	now    func() time.Time
	logger *zerolog.Logger
	mu     sync.Mutex
}

func NewFileStore(root string, logger *zerolog.Logger) *FileStore {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &FileStore{root: root, now: time.Now, logger: logger}
}

// Root is the directory holding run directories.
func (s *FileStore) Root() string { return s.root }

// RunDir is the directory a run writes its checkpoints and artifacts into.
func (s *FileStore) RunDir(runID string) string { return filepath.Join(s.root, runID) }

func (s *FileStore) Write(ctx context.Context, runID string, stage model.Stage, records any, overwrite bool) (err error) {
	defer func() { metrics.IncCheckpointWrite("file", checkpointResult(err)) }()
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(runID, stage)
	if err != nil {
		return err
	}
	cp, err := model.NewCheckpoint(runID, stage, records, s.now())
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, statErr := os.Stat(path); statErr == nil {
		if !overwrite {
			return fmt.Errorf("%w: %s/%s", domain.ErrAlreadyExists, runID, stage)
		}
		archived, err := s.archive(path, stage)
		if err != nil {
			return err
		}
		s.logger.Info().Str("run_id", runID).Str("stage", string(stage)).Str("archived", archived).Msg("previous checkpoint archived")
	} else if !errors.Is(statErr, fs.ErrNotExist) {
		return fmt.Errorf("stat checkpoint: %w", statErr)
	}

	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("write checkpoint %s/%s: %w", runID, stage, err)
	}
	s.logger.Debug().Str("run_id", runID).Str("stage", string(stage)).Int("records", cp.RecordCount()).Msg("checkpoint written")
	return nil
}

func (s *FileStore) Read(ctx context.Context, runID string, stage model.Stage, out any) error {
	cp, err := s.load(ctx, runID, stage)
	if err != nil {
		return err
	}
	return cp.Decode(out)
}

func (s *FileStore) Exists(ctx context.Context, runID string, stage model.Stage) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := s.path(runID, stage)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat checkpoint: %w", err)
	}
}

// List returns the current checkpoint of every stage present, in stage order.
func (s *FileStore) List(ctx context.Context, runID string) ([]model.CheckpointInfo, error) {
	if err := validRunID(runID); err != nil {
		return nil, err
	}
	var out []model.CheckpointInfo
	for _, st := range model.Stages {
		cp, err := s.load(ctx, runID, st)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, cp.Info())
	}
	return out, nil
}

// History lists archived checkpoint files for a stage, oldest first.
func (s *FileStore) History(runID string, stage model.Stage) ([]string, error) {
	if err := validRunID(runID); err != nil {
		return nil, err
	}
	pattern := filepath.Join(s.root, runID, checkpointDir, historyDir, string(stage)+".*.json")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func (s *FileStore) load(ctx context.Context, runID string, stage model.Stage) (*model.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.path(runID, stage)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: checkpoint %s/%s", domain.ErrNotFound, runID, stage)
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", path, err)
	}
	if cp.Version > model.CheckpointVersion {
		return nil, fmt.Errorf("checkpoint %s has version %d, newest supported is %d", path, cp.Version, model.CheckpointVersion)
	}
	return &cp, nil
}

// archive moves the current file into history under a sortable unique name.
func (s *FileStore) archive(path string, stage model.Stage) (string, error) {
	dir := filepath.Join(filepath.Dir(path), historyDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create history dir: %w", err)
	}
	dst := filepath.Join(dir, fmt.Sprintf("%s.%s.json", stage, ulid.Make()))
	if err := os.Rename(path, dst); err != nil {
		return "", fmt.Errorf("archive checkpoint: %w", err)
	}
	return dst, nil
}

func (s *FileStore) path(runID string, stage model.Stage) (string, error) {
	if err := validRunID(runID); err != nil {
		return "", err
	}
	if !stage.Valid() {
		return "", fmt.Errorf("%w: unknown stage %q", domain.ErrInvalidArgument, stage)
	}
	return filepath.Join(s.root, runID, checkpointDir, string(stage)+".json"), nil
}

func validRunID(runID string) error {
	if runID == "" || runID == "." || runID == ".." || strings.ContainsAny(runID, `/\`) {
		return fmt.Errorf("%w: invalid run id %q", domain.ErrInvalidArgument, runID)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

func checkpointResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrAlreadyExists):
		return "exists"
	default:
		return "error"
	}
}
