//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"

	"video-pipeline/internal/domain"
	"video-pipeline/internal/domain/model"
)

func newCheckpointRepo() *PostgresCheckpointRepo {
	return NewPostgresCheckpointRepo(testPool, NewTxManager(testPool), nil)
}

func TestPostgresCheckpointRepo_RoundTrip(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	repo := newCheckpointRepo()

	prompts := []model.Prompt{
		{ShotID: "S01", ShotType: "wide", Purpose: "establish", StyleKeywords: []string{"Cinematic"}},
		{ShotID: "S02", ShotType: "close-up", Camera: &model.CameraControl{Pan: -2}},
	}
	if err := repo.Write(ctx, "run-pg", model.StagePrompts, prompts, false); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	var got []model.Prompt
	if err := repo.Read(ctx, "run-pg", model.StagePrompts, &got); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got) != 2 || got[1].Camera == nil || got[1].Camera.Pan != -2 {
		t.Fatalf("Read() = %+v", got)
	}

	ok, err := repo.Exists(ctx, "run-pg", model.StagePrompts)
	if err != nil || !ok {
		t.Fatalf("Exists() = %v, %v", ok, err)
	}
	ok, err = repo.Exists(ctx, "run-pg", model.StageVideo)
	if err != nil || ok {
		t.Fatalf("Exists(video) = %v, %v", ok, err)
	}
}

func TestPostgresCheckpointRepo_Overwrite(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	repo := newCheckpointRepo()

	first := []model.Shot{{ID: "S01"}, {ID: "S02"}}
	if err := repo.Write(ctx, "run-pg", model.StageShots, first, false); err != nil {
		t.Fatal(err)
	}
	err := repo.Write(ctx, "run-pg", model.StageShots, first[:1], false)
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists, got %v", err)
	}
	if err := repo.Write(ctx, "run-pg", model.StageShots, first[:1], true); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	var got []model.Shot
	if err := repo.Read(ctx, "run-pg", model.StageShots, &got); err != nil || len(got) != 1 {
		t.Fatalf("active checkpoint = %+v, %v", got, err)
	}
	var rows int
	if err := testPool.QueryRow(ctx, `SELECT count(*) FROM checkpoints WHERE run_id = 'run-pg' AND stage = 'shot-composition'`).Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != 2 {
		t.Fatalf("superseded row should be kept, got %d rows", rows)
	}
}

func TestPostgresCheckpointRepo_ReadMissingAndList(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	repo := newCheckpointRepo()

	var out []model.Scene
	if err := repo.Read(ctx, "nope", model.StageNarrative, &out); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	_ = repo.Write(ctx, "run-pg", model.StagePrompts, []model.Prompt{{ShotID: "S01"}}, false)
	_ = repo.Write(ctx, "run-pg", model.StageNarrative, []model.Scene{{ID: "SC01"}, {ID: "SC02"}}, false)

	infos, err := repo.List(ctx, "run-pg")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(infos) != 2 || infos[0].Stage != model.StageNarrative || infos[0].Records != 2 || infos[1].Stage != model.StagePrompts {
		t.Fatalf("List() = %+v", infos)
	}
}
