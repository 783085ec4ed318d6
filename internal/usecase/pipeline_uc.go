package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"video-pipeline/internal/domain"
	"video-pipeline/internal/domain/model"
	"video-pipeline/internal/domain/ports/repository"
	ucport "video-pipeline/internal/domain/ports/usecase"
	"video-pipeline/internal/infra/logging"
	"video-pipeline/internal/infra/metrics"
)

// Compile-time check
var _ PipelineUseCase = (*pipelineUC)(nil)

// RunOptions selects the stages of one invocation.
type RunOptions struct {
	RunID     string
	From      model.Stage
	Through   model.Stage // zero means From only
	All       bool        // run from From to the last stage
	Delay     time.Duration
	MaxItems  int // cap on prompts sent to the video stage; 0 means all
	Overwrite bool
	Input     *model.NarrativeInput // required when From is the first stage
}

type PipelineUseCase interface {
	// Run executes the selected stages in order. Earlier stages are read
	// from their checkpoints, never recomputed. The report is returned even
	// on error and shows how far the run got.
	Run(ctx context.Context, opt RunOptions) (*model.RunReport, error)
}

type pipelineUC struct {
	store   repository.CheckpointStore
	scenes  ucport.SceneArchitect
	shots   ucport.ShotComposer
	prompts ucport.PromptBuilder
	videos  VideoUseCase
	locker  repository.RunLocker
	lockTTL time.Duration
	log     *zerolog.Logger
}

// NewPipelineUseCase builds the orchestrator. A nil locker falls back to an
// in-process lock.
func NewPipelineUseCase(
	store repository.CheckpointStore,
	scenes ucport.SceneArchitect,
	shots ucport.ShotComposer,
	prompts ucport.PromptBuilder,
	videos VideoUseCase,
	locker repository.RunLocker,
	lockTTL time.Duration,
	logger *zerolog.Logger,
) *pipelineUC {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if lockTTL <= 0 {
		lockTTL = 2 * time.Hour
	}
	return &pipelineUC{
		store:   store,
		scenes:  scenes,
		shots:   shots,
		prompts: prompts,
		videos:  videos,
		locker:  locker,
		lockTTL: lockTTL,
		log:     orNop(logger),
	}
}

// runState holds the records flowing between stages of one invocation.
type runState struct {
	scenes  []model.Scene
	shots   []model.Shot
	prompts []model.Prompt
}

func (u *pipelineUC) Run(ctx context.Context, opt RunOptions) (*model.RunReport, error) {
	stages, err := selectStages(opt)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithRunID(ctx, opt.RunID)
	log := logging.With(ctx, u.log)

	token, err := u.locker.TryLock(ctx, "run:"+opt.RunID, u.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("lock run %s: %w", opt.RunID, err)
	}
	defer func() {
		// the run ctx may already be cancelled
		if err := u.locker.Unlock(context.Background(), "run:"+opt.RunID, token); err != nil {
			log.Warn().Err(err).Msg("release run lock")
		}
	}()

	report := model.NewRunReport(opt.RunID)
	if err := u.checkPrerequisites(ctx, opt.RunID, stages[0], report); err != nil {
		return report, err
	}
	if !opt.Overwrite {
		for _, s := range stages {
			ok, err := u.store.Exists(ctx, opt.RunID, s)
			if err != nil {
				return report, &domain.StageError{Stage: string(s), Err: err}
			}
			if ok {
				return report, &domain.StageError{Stage: string(s), Err: fmt.Errorf("%w: checkpoint exists; pass overwrite to replace it", domain.ErrAlreadyExists)}
			}
		}
	}

	log.Info().Str("from", string(stages[0])).Str("through", string(stages[len(stages)-1])).Msg("pipeline run started")
	st := &runState{}
	for i, s := range stages {
		if i > 0 && opt.Delay > 0 {
			log.Info().Dur("delay", opt.Delay).Str("next", string(s)).Msg("waiting before next stage")
			if err := sleepCtx(ctx, opt.Delay); err != nil {
				return report, &domain.StageError{Stage: string(s), Err: err}
			}
		}
		if err := u.runStage(logging.WithStage(ctx, string(s)), s, opt, st, report); err != nil {
			return report, err
		}
	}
	log.Info().Int("videos", len(report.Videos)).Int("failed_items", len(report.FailedItems)).Msg("pipeline run finished")
	return report, nil
}

// selectStages validates opt and returns the stages to execute.
func selectStages(opt RunOptions) ([]model.Stage, error) {
	if strings.TrimSpace(opt.RunID) == "" {
		return nil, fmt.Errorf("%w: run id is required", domain.ErrInvalidArgument)
	}
	if !opt.From.Valid() {
		return nil, fmt.Errorf("%w: unknown start stage %q", domain.ErrInvalidArgument, opt.From)
	}
	through := opt.Through
	switch {
	case opt.All:
		through = model.Stages[len(model.Stages)-1]
	case through == "":
		through = opt.From
	case !through.Valid():
		return nil, fmt.Errorf("%w: unknown end stage %q", domain.ErrInvalidArgument, through)
	}
	if through.Index() < opt.From.Index() {
		return nil, fmt.Errorf("%w: end stage %s comes before %s", domain.ErrInvalidArgument, through, opt.From)
	}
	if opt.From == model.StageNarrative && opt.Input == nil {
		return nil, fmt.Errorf("%w: narrative input is required to start at %s", domain.ErrInvalidArgument, opt.From)
	}
	return model.Stages[opt.From.Index() : through.Index()+1], nil
}

// checkPrerequisites requires a checkpoint for every stage before first and
// marks them loaded in the report.
func (u *pipelineUC) checkPrerequisites(ctx context.Context, runID string, first model.Stage, report *model.RunReport) error {
	infos, err := u.store.List(ctx, runID)
	if err != nil {
		return fmt.Errorf("list checkpoints: %w", err)
	}
	have := make(map[model.Stage]model.CheckpointInfo, len(infos))
	for _, in := range infos {
		have[in.Stage] = in
	}
	for _, s := range first.Predecessors() {
		info, ok := have[s]
		if !ok {
			sr := report.Stage(s)
			sr.State = model.StageStateFailed
			sr.Error = "checkpoint missing"
			return &domain.StageError{Stage: string(s), Err: fmt.Errorf("%w: run %s has no %s checkpoint", domain.ErrMissingPrerequisite, runID, s)}
		}
		sr := report.Stage(s)
		sr.State = model.StageStateCompleted
		sr.Loaded = true
		sr.Records = info.Records
		sr.FinishedAt = info.CreatedAt
		metrics.ObserveStage(string(s), "loaded", 0)
	}
	return nil
}

func (u *pipelineUC) runStage(ctx context.Context, s model.Stage, opt RunOptions, st *runState, report *model.RunReport) error {
	defer logging.TraceDuration(u.log, "PipelineUC.runStage")()
	log := logging.With(ctx, u.log)

	sr := report.Stage(s)
	sr.State = model.StageStateRunning
	sr.StartedAt = time.Now().UTC()

	records, n, err := u.execute(ctx, s, opt, st, report)
	if err == nil {
		err = u.store.Write(ctx, opt.RunID, s, records, opt.Overwrite)
	}

	sr.FinishedAt = time.Now().UTC()
	sr.Duration = sr.FinishedAt.Sub(sr.StartedAt)
	if err != nil {
		sr.State = model.StageStateFailed
		sr.Error = err.Error()
		metrics.ObserveStage(string(s), string(model.StageStateFailed), sr.Duration.Seconds())
		log.Error().Err(err).Dur("elapsed", sr.Duration).Msg("stage failed")
		var se *domain.StageError
		if errors.As(err, &se) {
			return err
		}
		return &domain.StageError{Stage: string(s), Err: err}
	}
	sr.State = model.StageStateCompleted
	sr.Records = n
	metrics.ObserveStage(string(s), string(model.StageStateCompleted), sr.Duration.Seconds())
	log.Info().Int("records", n).Dur("elapsed", sr.Duration).Msg("stage completed")
	return nil
}

// execute runs one stage and returns the records to checkpoint.
func (u *pipelineUC) execute(ctx context.Context, s model.Stage, opt RunOptions, st *runState, report *model.RunReport) (any, int, error) {
	switch s {
	case model.StageNarrative:
		scenes, err := u.scenes.Decompose(ctx, *opt.Input)
		if err != nil {
			return nil, 0, err
		}
		st.scenes = scenes
		return scenes, len(scenes), nil

	case model.StageShots:
		if err := u.load(ctx, opt.RunID, model.StageNarrative, &st.scenes); err != nil {
			return nil, 0, err
		}
		shots, err := u.shots.Compose(ctx, st.scenes)
		if err != nil {
			return nil, 0, err
		}
		st.shots = shots
		return shots, len(shots), nil

	case model.StagePrompts:
		if err := u.load(ctx, opt.RunID, model.StageNarrative, &st.scenes); err != nil {
			return nil, 0, err
		}
		if err := u.load(ctx, opt.RunID, model.StageShots, &st.shots); err != nil {
			return nil, 0, err
		}
		prompts, err := u.prompts.Build(ctx, st.shots, st.scenes)
		if err != nil {
			return nil, 0, err
		}
		st.prompts = prompts
		return prompts, len(prompts), nil

	case model.StageVideo:
		if err := u.load(ctx, opt.RunID, model.StagePrompts, &st.prompts); err != nil {
			return nil, 0, err
		}
		results, err := u.videos.Generate(ctx, opt.RunID, st.prompts, opt.MaxItems)
		report.Videos = results
		for _, r := range results {
			if r.Status != model.VideoSucceeded {
				report.FailedItems = append(report.FailedItems, r)
			}
		}
		if err != nil {
			return nil, 0, err
		}
		return results, len(results), nil
	}
	return nil, 0, fmt.Errorf("%w: stage %q", domain.ErrInvalidArgument, s)
}

// load fills dst from the stage checkpoint unless an earlier stage of this
// invocation already produced it.
func (u *pipelineUC) load(ctx context.Context, runID string, s model.Stage, dst any) error {
	switch v := dst.(type) {
	case *[]model.Scene:
		if *v != nil {
			return nil
		}
	case *[]model.Shot:
		if *v != nil {
			return nil
		}
	case *[]model.Prompt:
		if *v != nil {
			return nil
		}
	}
	if err := u.store.Read(ctx, runID, s, dst); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.StageError{Stage: string(s), Err: fmt.Errorf("%w: %v", domain.ErrMissingPrerequisite, err)}
		}
		return fmt.Errorf("load %s checkpoint: %w", s, err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
