//go:build !integration

package model

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"video-pipeline/internal/domain"
)

// --- Stage Tests ---

func TestStageOrder(t *testing.T) {
	t.Run("predecessors follow execution order", func(t *testing.T) {
		if got := StageNarrative.Predecessors(); len(got) != 0 {
			t.Errorf("narrative should have no predecessors, got %v", got)
		}
		got := StageVideo.Predecessors()
		want := []Stage{StageNarrative, StageShots, StagePrompts}
		if len(got) != len(want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("predecessor %d: expected %s, got %s", i, want[i], got[i])
			}
		}
	})

	t.Run("unknown stage is invalid", func(t *testing.T) {
		if Stage("stage-9").Valid() {
			t.Error("expected stage-9 to be invalid")
		}
		if Stage("stage-9").Predecessors() != nil {
			t.Error("expected no predecessors for an unknown stage")
		}
	})
}

func TestParseStage(t *testing.T) {
	cases := map[string]Stage{
		"stage-1":                 StageNarrative,
		"stage-2":                 StageShots,
		"stage-3":                 StagePrompts,
		"video":                   StageVideo,
		"prompt-assembly":         StagePrompts,
		"narrative-decomposition": StageNarrative,
	}
	for in, want := range cases {
		got, err := ParseStage(in)
		if err != nil || got != want {
			t.Errorf("ParseStage(%q) = %s, %v; want %s", in, got, err, want)
		}
	}
	if _, err := ParseStage("stage-4"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

// --- Checkpoint Tests ---

func TestCheckpoint(t *testing.T) {
	now := time.Date(2026, 1, 28, 11, 23, 2, 0, time.FixedZone("KST", 9*3600))

	t.Run("envelope round trip", func(t *testing.T) {
		shots := []Shot{{ID: "SC01-S01", SceneID: "SC01"}, {ID: "SC01-S02", SceneID: "SC01"}}
		cp, err := NewCheckpoint("run-1", StageShots, shots, now)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cp.Version != CheckpointVersion || cp.CreatedAt.Location() != time.UTC {
			t.Errorf("unexpected envelope %+v", cp)
		}
		if cp.RecordCount() != 2 || cp.Info().Records != 2 {
			t.Errorf("expected 2 records, got %d", cp.RecordCount())
		}
		var back []Shot
		if err := cp.Decode(&back); err != nil || len(back) != 2 || back[1].ID != "SC01-S02" {
			t.Errorf("decode = %+v, %v", back, err)
		}
	})

	t.Run("empty records are missing data", func(t *testing.T) {
		cp := &Checkpoint{Stage: StagePrompts}
		var out []Prompt
		if err := cp.Decode(&out); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if cp.RecordCount() != 0 {
			t.Errorf("expected 0 records, got %d", cp.RecordCount())
		}
	})
}

// --- Camera Tests ---

func TestCameraControl(t *testing.T) {
	t.Run("all-zero camera has no movement", func(t *testing.T) {
		c := &CameraControl{}
		if c.HasMovement() || c.Movement() != nil {
			t.Error("expected all-zero camera to be omitted")
		}
		var nilCam *CameraControl
		if nilCam.Movement() != nil {
			t.Error("expected nil camera to stay nil")
		}
	})

	t.Run("axis bounds", func(t *testing.T) {
		ok := CameraControl{Horizontal: -10, Zoom: 10}
		if err := ok.Validate(); err != nil {
			t.Errorf("expected bounds to be inclusive, got %v", err)
		}
		for _, bad := range []CameraControl{{Pan: 10.5}, {Roll: -11}, {Tilt: math.NaN()}} {
			if err := bad.Validate(); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected ErrValidation for %+v, got %v", bad, err)
			}
		}
	})
}

// --- Generation Request Tests ---

func TestGenerationRequestValidate(t *testing.T) {
	base := GenerationRequest{Prompt: "a lake at dawn", Duration: "5", AspectRatio: "16:9", Mode: "std"}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
	cases := map[string]func(r *GenerationRequest){
		"empty prompt": func(r *GenerationRequest) { r.Prompt = "  " },
		"bad ratio":    func(r *GenerationRequest) { r.AspectRatio = "4:3" },
		"bad mode":     func(r *GenerationRequest) { r.Mode = "ultra" },
		"bad duration": func(r *GenerationRequest) { r.Duration = "0" },
		"bad camera":   func(r *GenerationRequest) { r.Camera = &CameraControl{Zoom: 12} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			r := base
			mutate(&r)
			if err := r.Validate(); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

// --- Job Tests ---

func TestGenerationJobStates(t *testing.T) {
	if PendingJob("j1", "kling", JobStatusProcessing, "processing").IsTerminal() {
		t.Error("processing job must not be terminal")
	}
	if !SucceededJob("j1", "kling", "https://cdn/x.mp4").IsTerminal() {
		t.Error("succeeded job must be terminal")
	}
	timedOut := TimedOutJob("j1", "kling", "timeout after 5m0s")
	if !timedOut.IsTimedOut() || !timedOut.IsTerminal() {
		t.Errorf("expected a terminal timeout, got %+v", timedOut)
	}
	if FailedJob("j1", "kling", "content policy").IsTimedOut() {
		t.Error("provider failure reported as timeout")
	}
	if FailedJob("j1", "kling", "timeout while rendering").IsTimedOut() {
		t.Error("provider message starting with timeout reported as local timeout")
	}
	var nilJob *GenerationJob
	if nilJob.IsTerminal() || nilJob.IsTimedOut() {
		t.Error("nil job must be neither terminal nor timed out")
	}
}

// --- Credential Tests ---

func TestCredential(t *testing.T) {
	now := time.Date(2026, 2, 1, 23, 59, 0, 0, time.UTC)
	c := NewCredential("ak-1", "secret", 10, now)
	c.UsedToday = 12
	if c.Remaining() != 0 {
		t.Errorf("expected remaining to floor at 0, got %d", c.Remaining())
	}
	if strings.Contains(c.String(), "secret") {
		t.Error("String leaked key material")
	}
	if !c.LastReset.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected reset day %v", c.LastReset)
	}
}

// --- Storyboard Tests ---

func TestPromptBuild(t *testing.T) {
	p := Prompt{
		ShotID:           "SC01-S01",
		ShotType:         "close-up",
		Purpose:          "show resolve",
		Action:           "Ava looks up",
		CharacterPrompts: []string{Character{Name: "Ava", Age: 28, Gender: "woman", Outfit: "canvas coat"}.Describe()},
		SceneContext:     "the lake at dawn",
		Cinematography:   &Cinematography{ShotFraming: "close-up", CameraMovement: "zoom in"},
		StyleKeywords:    []string{"Cinematic", "24fps film look"},
		NegativePrompts:  []string{"CGI", "text"},
	}
	want := "close-up, zoom in. Ava, a 28-year-old woman, wearing canvas coat. Ava looks up. show resolve. Scene: the lake at dawn. Cinematic, 24fps film look"
	if got := p.Build(); got != want {
		t.Errorf("Build()\n got: %s\nwant: %s", got, want)
	}
	if p.Negative() != "CGI, text" {
		t.Errorf("unexpected negative prompt %q", p.Negative())
	}
}

func TestPromptPreview(t *testing.T) {
	long := strings.Repeat("가", 250)
	if got := []rune(PromptPreview(long)); len(got) != 200 {
		t.Errorf("expected 200 runes, got %d", len(got))
	}
	if PromptPreview("short") != "short" {
		t.Error("short prompts must be unchanged")
	}
}

func TestValidateShotID(t *testing.T) {
	if err := ValidateShotID("SC01-S01"); err != nil {
		t.Errorf("expected SC01-S01 to be valid, got %v", err)
	}
	for _, bad := range []string{"", "  ", "../x", "a/b", `a\b`, "..", "x..y"} {
		if err := ValidateShotID(bad); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("ValidateShotID(%q) = %v, want ErrValidation", bad, err)
		}
	}
}

// --- Run Report Tests ---

func TestRunReport(t *testing.T) {
	r := NewRunReport("run-1")
	if len(r.Stages) != len(Stages) || r.State(StageVideo) != StageStatePending {
		t.Fatalf("unexpected initial report %+v", r)
	}
	r.Videos = []VideoResult{{ShotID: "a", Status: VideoSucceeded}, {ShotID: "b", Status: VideoFailed}}
	if r.Succeeded() != 1 {
		t.Errorf("expected 1 success, got %d", r.Succeeded())
	}
	if r.Stage("nope") != nil || r.State("nope") != StageStatePending {
		t.Error("unknown stage should read as pending")
	}
}
