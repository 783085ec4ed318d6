package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"video-pipeline/internal/app"
	"video-pipeline/internal/config"
	"video-pipeline/internal/domain"
	"video-pipeline/internal/domain/model"
	"video-pipeline/internal/infra/adapters/video"
	"video-pipeline/internal/infra/security"
	"video-pipeline/internal/usecase"
)

func newRunCmd() *cobra.Command {
	var (
		lorePath string
		runDir   string
		through  string
		delay    time.Duration
		shots    int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a new run from a lore file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			input, err := loadLore(lorePath)
			if err != nil {
				return err
			}
			if runDir == "" {
				runDir = time.Now().Format("20060102_150405")
			}
			opt := usecase.RunOptions{From: model.StageNarrative, All: through == "", Delay: delay, Input: input}
			if through != "" {
				if opt.Through, err = model.ParseStage(through); err != nil {
					return err
				}
			}
			return execute(cmd, runDir, shots, opt)
		},
	}
	cmd.Flags().StringVar(&lorePath, "lore", "", "lore YAML file with the story to film")
	cmd.Flags().StringVar(&runDir, "run-dir", "", "run directory (default: <output_dir>/<timestamp>)")
	cmd.Flags().StringVar(&through, "through", "", "last stage to run: stage-1|stage-2|stage-3|video (default: all)")
	cmd.Flags().DurationVar(&delay, "delay", 0, "pause between stages, e.g. 180s")
	cmd.Flags().IntVar(&shots, "shots", 0, "max shots sent to video generation (default: pipeline.max_shots)")
	_ = cmd.MarkFlagRequired("lore")
	return cmd
}

func newResumeCmd() *cobra.Command {
	var (
		runDir    string
		stage     string
		cont      bool
		delay     time.Duration
		shots     int
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Re-run a stage of an existing run from its checkpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opt := usecase.RunOptions{Delay: delay, Overwrite: overwrite, All: cont}
			if stage == "all" {
				opt.From, opt.All = model.StageShots, true
			} else {
				s, err := model.ParseStage(stage)
				if err != nil {
					return err
				}
				opt.From = s
			}
			return execute(cmd, runDir, shots, opt)
		},
	}
	cmd.Flags().StringVar(&runDir, "run-dir", "", "existing run directory, e.g. output/20260128_112302")
	cmd.Flags().StringVar(&stage, "stage", "all", "stage to run: stage-2|stage-3|video|all")
	cmd.Flags().BoolVar(&cont, "continue", false, "also run every stage after --stage")
	cmd.Flags().DurationVar(&delay, "delay", 0, "pause between stages, e.g. 180s")
	cmd.Flags().IntVar(&shots, "shots", 0, "max shots sent to video generation (default: pipeline.max_shots)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace existing checkpoints of the stages that run")
	_ = cmd.MarkFlagRequired("run-dir")
	return cmd
}

// execute splits runDir into output dir and run id, runs the pipeline and
// prints the report. A failed stage makes the command exit non-zero.
func execute(cmd *cobra.Command, runDir string, shots int, opt usecase.RunOptions) error {
	ctx := cmd.Context()
	runDir = filepath.Clean(runDir)
	opt.RunID = filepath.Base(runDir)

	a, logger, err := bootstrap(ctx, func(cfg *config.Config) {
		if dir := filepath.Dir(runDir); dir != "." {
			cfg.Pipeline.OutputDir = dir
		}
		if shots <= 0 {
			shots = cfg.Pipeline.MaxShots
		}
	})
	if err != nil {
		return err
	}
	defer a.Close()
	if opt.Delay == 0 {
		opt.Delay = a.Cfg.Pipeline.StageDelay
	}
	opt.MaxItems = shots

	logger.Info().
		Str("run_id", opt.RunID).
		Str("output_dir", a.Cfg.Pipeline.OutputDir).
		Str("from", string(opt.From)).
		Str("through", string(opt.Through)).
		Bool("all", opt.All).
		Int("shots", opt.MaxItems).
		Msg("pipeline starting")

	report, runErr := a.Pipeline.Run(ctx, opt)
	if report != nil {
		if err := printJSON(report); err != nil {
			return err
		}
	}
	if runErr != nil {
		logger.Error().Err(runErr).Str("run_id", opt.RunID).Msg("pipeline failed")
		return runErr
	}
	return nil
}

func loadLore(path string) (*model.NarrativeInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lore: %w", err)
	}
	var in model.NarrativeInput
	if err := yaml.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("parse lore %s: %w", path, err)
	}
	if strings.TrimSpace(in.Story) == "" && strings.TrimSpace(in.Lyrics) == "" {
		return nil, fmt.Errorf("%w: lore %s has neither story nor lyrics", domain.ErrInvalidArgument, path)
	}
	return &in, nil
}

func newPollCmd() *cobra.Command {
	var (
		jobID    string
		provider string
		credID   string
		wait     bool
		out      string
	)
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Check a generation job again, e.g. after a local timeout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, logger, err := bootstrap(ctx, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if provider == "" {
				provider = a.Video.ProviderForJob(jobID)
			}
			pool, err := a.PoolFor(provider)
			if err != nil {
				return err
			}
			if credID == "" {
				stats := pool.Stats()
				if len(stats) == 0 {
					return fmt.Errorf("%w: pool %s is empty", domain.ErrNotFound, pool.Name())
				}
				credID = stats[0].ID
			}
			cred, err := pool.Lookup(credID)
			if err != nil {
				return err
			}

			job, err := a.Video.Poll(ctx, cred, jobID)
			if err != nil {
				return err
			}
			if wait && !job.IsTerminal() {
				job, err = video.AwaitCompletion(ctx, a.Video, cred, jobID, a.Cfg.Generation.PollInterval, a.Cfg.Generation.Timeout, logger)
				if err != nil {
					return err
				}
			}
			if out != "" && job.Status == model.JobStatusSucceeded {
				path, err := a.Video.FetchArtifact(ctx, cred, job.ResultURI, out)
				if err != nil {
					return err
				}
				logger.Info().Str("job_id", jobID).Str("path", path).Msg("video downloaded")
			}
			return printJSON(job)
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "provider job id")
	cmd.Flags().StringVar(&provider, "provider", "", "kling|veo|noop (default: guessed from the job id)")
	cmd.Flags().StringVar(&credID, "credential", "", "credential id that submitted the job (default: first in pool)")
	cmd.Flags().BoolVar(&wait, "wait", false, "keep polling until the job finishes or generation.timeout passes")
	cmd.Flags().StringVar(&out, "out", "", "download the video here when the job succeeded")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

func newPoolCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pool",
		Short: "Print credential pool status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, err := bootstrap(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.Close()
			if len(a.Pools) == 0 {
				return errors.New("no credential pools configured")
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "POOL\tCREDENTIAL\tUSED\tQUOTA\tFAILURES\tEXCLUDED")
			for _, name := range []string{app.PoolKling, app.PoolGoogle, app.PoolNoop} {
				p := a.Pools[name]
				if p == nil {
					continue
				}
				for _, c := range p.Stats() {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%t\n", name, maskID(c.ID), c.UsedToday, c.DailyQuota, c.ConsecutiveFailures, c.Excluded)
				}
			}
			return tw.Flush()
		},
	}
}

func newSealCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "seal",
		Short: "Encrypt a secret read from stdin for use in config.yaml",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if key == "" {
				key = os.Getenv("PIPELINE_MASTER_KEY")
			}
			enc, err := security.NewEncryptionService(key)
			if err != nil {
				return err
			}
			secret, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			secret = strings.TrimRight(secret, "\r\n")
			if secret == "" {
				return fmt.Errorf("%w: empty secret", domain.ErrInvalidArgument)
			}
			sealed, err := enc.Seal(secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "encryption key (default: $PIPELINE_MASTER_KEY)")
	return cmd
}

// maskID shortens long access keys for display.
func maskID(id string) string {
	if len(id) <= 10 {
		return id
	}
	return id[:4] + "…" + id[len(id)-4:]
}
