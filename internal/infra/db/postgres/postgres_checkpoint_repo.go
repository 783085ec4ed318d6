package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"video-pipeline/internal/domain"
	"video-pipeline/internal/domain/model"
	"video-pipeline/internal/domain/ports/repository"
	"video-pipeline/internal/infra/metrics"
)

var _ repository.CheckpointStore = (*PostgresCheckpointRepo)(nil)

// PostgresCheckpointRepo stores checkpoints as jsonb rows. Only one row per
// (run_id, stage) is active; an overwrite stamps superseded_at on the old row
// and inserts a new one in the same transaction.
type PostgresCheckpointRepo struct {
	pool   *pgxpool.Pool
	tm     repository.TransactionManager
	now    func() time.Time
	logger *zerolog.Logger
}

func NewPostgresCheckpointRepo(pool *pgxpool.Pool, tm repository.TransactionManager, logger *zerolog.Logger) *PostgresCheckpointRepo {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &PostgresCheckpointRepo{pool: pool, tm: tm, now: time.Now, logger: logger}
}

func (r *PostgresCheckpointRepo) Write(ctx context.Context, runID string, stage model.Stage, records any, overwrite bool) (err error) {
	defer func() {
		result := "ok"
		switch {
		case errors.Is(err, domain.ErrAlreadyExists):
			result = "exists"
		case err != nil:
			result = "error"
		}
		metrics.IncCheckpointWrite("postgres", result)
	}()
	if runID == "" || !stage.Valid() {
		return fmt.Errorf("%w: run %q stage %q", domain.ErrInvalidArgument, runID, stage)
	}
	cp, err := model.NewCheckpoint(runID, stage, records, r.now())
	if err != nil {
		return err
	}

	err = r.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		const lockQ = `
SELECT id FROM checkpoints
 WHERE run_id = $1 AND stage = $2 AND superseded_at IS NULL
 FOR UPDATE;`
		row, err := pickRow(ctx, r.pool, tx, lockQ, runID, string(stage))
		if err != nil {
			return err
		}
		var currentID int64
		switch err := row.Scan(&currentID); {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return fmt.Errorf("lock checkpoint: %w", err)
		default:
			if !overwrite {
				return fmt.Errorf("%w: %s/%s", domain.ErrAlreadyExists, runID, stage)
			}
			const supersedeQ = `UPDATE checkpoints SET superseded_at = $2 WHERE id = $1;`
			if _, err := execSQL(ctx, r.pool, tx, supersedeQ, currentID, cp.CreatedAt); err != nil {
				return fmt.Errorf("supersede checkpoint: %w", err)
			}
		}

		const insertQ = `
INSERT INTO checkpoints (run_id, stage, version, records, created_at)
VALUES ($1, $2, $3, $4, $5);`
		if _, err := execSQL(ctx, r.pool, tx, insertQ, runID, string(stage), cp.Version, []byte(cp.Records), cp.CreatedAt); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s/%s", domain.ErrAlreadyExists, runID, stage)
			}
			return fmt.Errorf("insert checkpoint: %w", err)
		}
		return nil
	})
	if err == nil {
		r.logger.Debug().Str("run_id", runID).Str("stage", string(stage)).Int("records", cp.RecordCount()).Msg("checkpoint written")
	}
	return err
}

func (r *PostgresCheckpointRepo) Read(ctx context.Context, runID string, stage model.Stage, out any) error {
	const q = `
SELECT version, records, created_at
  FROM checkpoints
 WHERE run_id = $1 AND stage = $2 AND superseded_at IS NULL;`
	row, err := pickRow(ctx, r.pool, nil, q, runID, string(stage))
	if err != nil {
		return err
	}
	cp := model.Checkpoint{RunID: runID, Stage: stage}
	var raw []byte
	if err := row.Scan(&cp.Version, &raw, &cp.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: checkpoint %s/%s", domain.ErrNotFound, runID, stage)
		}
		return fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	if cp.Version > model.CheckpointVersion {
		return fmt.Errorf("checkpoint %s/%s has version %d, newest supported is %d", runID, stage, cp.Version, model.CheckpointVersion)
	}
	cp.Records = raw
	return cp.Decode(out)
}

func (r *PostgresCheckpointRepo) Exists(ctx context.Context, runID string, stage model.Stage) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1 FROM checkpoints
   WHERE run_id = $1 AND stage = $2 AND superseded_at IS NULL
);`
	row, err := pickRow(ctx, r.pool, nil, q, runID, string(stage))
	if err != nil {
		return false, err
	}
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	return ok, nil
}

func (r *PostgresCheckpointRepo) List(ctx context.Context, runID string) ([]model.CheckpointInfo, error) {
	const q = `
SELECT stage, created_at,
       CASE WHEN jsonb_typeof(records) = 'array' THEN jsonb_array_length(records) ELSE 1 END
  FROM checkpoints
 WHERE run_id = $1 AND superseded_at IS NULL;`
	rows, err := queryRows(ctx, r.pool, nil, q, runID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []model.CheckpointInfo
	for rows.Next() {
		info := model.CheckpointInfo{RunID: runID}
		var stage string
		if err := rows.Scan(&stage, &info.CreatedAt, &info.Records); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
		}
		info.Stage = model.Stage(stage)
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage.Index() < out[j].Stage.Index() })
	return out, nil
}
