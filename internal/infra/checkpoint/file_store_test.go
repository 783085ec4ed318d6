package checkpoint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"video-pipeline/internal/domain"
	"video-pipeline/internal/domain/model"
)

func sampleShots() []model.Shot {
	return []model.Shot{
		{ID: "S01", SceneID: "SC01", ShotType: "wide", Purpose: "establish", ActionDescription: "mist over the lake", DurationSeconds: 5},
		{ID: "S02", SceneID: "SC01", ShotType: "close-up", Purpose: "emotion", ActionDescription: "Ava looks up", DurationSeconds: 5,
			Camera: &model.CameraControl{Zoom: 3}},
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir(), nil)
	in := sampleShots()

	if err := s.Write(ctx, "run1", model.StageShots, in, false); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out []model.Shot
	if err := s.Read(ctx, "run1", model.StageShots, &out); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\n in=%+v\nout=%+v", in, out)
	}
	ok, err := s.Exists(ctx, "run1", model.StageShots)
	if err != nil || !ok {
		t.Fatalf("exists = %v, %v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(s.RunDir("run1"), "checkpoints", "shot-composition.json")); err != nil {
		t.Fatalf("checkpoint file not at expected path: %v", err)
	}
}

func TestFileStore_WriteExistingWithoutOverwrite(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir(), nil)
	if err := s.Write(ctx, "run1", model.StageShots, sampleShots(), false); err != nil {
		t.Fatal(err)
	}
	err := s.Write(ctx, "run1", model.StageShots, sampleShots()[:1], false)
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists, got %v", err)
	}
	var out []model.Shot
	if err := s.Read(ctx, "run1", model.StageShots, &out); err != nil || len(out) != 2 {
		t.Fatalf("original checkpoint must be intact: %d records, %v", len(out), err)
	}
}

func TestFileStore_OverwriteArchivesPrevious(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir(), nil)
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return old }
	if err := s.Write(ctx, "run1", model.StageShots, sampleShots(), false); err != nil {
		t.Fatal(err)
	}
	s.now = time.Now
	if err := s.Write(ctx, "run1", model.StageShots, sampleShots()[:1], true); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	var out []model.Shot
	if err := s.Read(ctx, "run1", model.StageShots, &out); err != nil || len(out) != 1 {
		t.Fatalf("current checkpoint should have 1 record: %d, %v", len(out), err)
	}
	hist, err := s.History("run1", model.StageShots)
	if err != nil || len(hist) != 1 {
		t.Fatalf("history = %v, %v", hist, err)
	}
	b, err := os.ReadFile(hist[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"S02"`) || !strings.Contains(string(b), `"2025-01-01T00:00:00Z"`) {
		t.Fatalf("archived checkpoint was modified:\n%s", b)
	}
}

func TestFileStore_ReadMissing(t *testing.T) {
	s := NewFileStore(t.TempDir(), nil)
	var out []model.Prompt
	err := s.Read(context.Background(), "run1", model.StagePrompts, &out)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	ok, err := s.Exists(context.Background(), "run1", model.StagePrompts)
	if err != nil || ok {
		t.Fatalf("exists = %v, %v", ok, err)
	}
}

func TestFileStore_ListInStageOrder(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir(), nil)
	prompts := []model.Prompt{{ShotID: "S01"}, {ShotID: "S02"}, {ShotID: "S03"}}
	if err := s.Write(ctx, "run1", model.StagePrompts, prompts, false); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ctx, "run1", model.StageShots, sampleShots(), false); err != nil {
		t.Fatal(err)
	}

	infos, err := s.List(ctx, "run1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Stage != model.StageShots || infos[1].Stage != model.StagePrompts {
		t.Fatalf("unexpected order: %+v", infos)
	}
	if infos[0].Records != 2 || infos[1].Records != 3 {
		t.Fatalf("unexpected record counts: %+v", infos)
	}
}

func TestFileStore_RejectsBadRunID(t *testing.T) {
	s := NewFileStore(t.TempDir(), nil)
	for _, id := range []string{"", "..", "a/b"} {
		err := s.Write(context.Background(), id, model.StageShots, sampleShots(), false)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("run id %q: want ErrInvalidArgument, got %v", id, err)
		}
	}
}
