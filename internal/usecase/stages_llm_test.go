package usecase_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"video-pipeline/internal/domain"
	"video-pipeline/internal/domain/model"
	"video-pipeline/internal/domain/ports/adapter"
	"video-pipeline/internal/usecase"
)

const scenesReply = "```json\n" + `{
  "characters": [{"id": "C01", "name": "Ava", "age": 28, "gender": "woman", "physical_description": "dark hair"}],
  "scenes": [
    {"id": "SC01", "scene_type": "setup", "act": 1, "duration_seconds": 10, "narrative_summary": "Ava walks to the lake", "character_ids": ["C01"]},
    {"id": "SC02", "scene_type": "resolution", "act": 3, "duration_seconds": 10, "narrative_summary": "Sunrise over water"}
  ]
}` + "\n```"

func TestSceneArchitect_EmbedsCharacters(t *testing.T) {
	ai := newScriptedAI(map[string]string{adapter.TaskScenes: scenesReply})
	arch := usecase.NewSceneArchitect(ai, usecase.LLMOptions{Model: "gemini-2.0-flash-lite", Temperature: 0.7}, nil)

	scenes, err := arch.Decompose(context.Background(), model.NarrativeInput{Title: "Dawn", Story: "a homecoming", TargetSeconds: 20})
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(scenes) != 2 {
		t.Fatalf("got %d scenes", len(scenes))
	}
	if len(scenes[0].Characters) != 1 || scenes[0].Characters[0].Name != "Ava" {
		t.Fatalf("characters not embedded: %+v", scenes[0])
	}
	if len(scenes[1].Characters) != 0 {
		t.Fatalf("scene without characters got %+v", scenes[1].Characters)
	}
	if !ai.last.JSON || ai.last.Model != "gemini-2.0-flash-lite" || ai.last.Messages[0].Role != "system" {
		t.Fatalf("unexpected request %+v", ai.last)
	}
	if !strings.Contains(ai.last.Messages[1].Content, `"story":"a homecoming"`) {
		t.Fatalf("narrative input not sent: %s", ai.last.Messages[1].Content)
	}
}

func TestSceneArchitect_RejectsBadReplies(t *testing.T) {
	cases := map[string]string{
		"unknown field":     `{"scenes":[{"id":"SC01","mood":"sad"}]}`,
		"unknown character": `{"characters":[],"scenes":[{"id":"SC01","character_ids":["C09"]}]}`,
		"no scenes":         `{"characters":[],"scenes":[]}`,
		"duplicate id":      `{"scenes":[{"id":"SC01"},{"id":"SC01"}]}`,
		"not json":          `Here are your scenes!`,
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			arch := usecase.NewSceneArchitect(newScriptedAI(map[string]string{adapter.TaskScenes: reply}), usecase.LLMOptions{}, nil)
			_, err := arch.Decompose(context.Background(), model.NarrativeInput{Story: "x"})
			if !errors.Is(err, domain.ErrProvider) {
				t.Fatalf("want ErrProvider, got %v", err)
			}
		})
	}
}

func TestSceneArchitect_PropagatesLLMErrors(t *testing.T) {
	ai := newScriptedAI(nil)
	ai.err = domain.ErrPoolExhausted
	arch := usecase.NewSceneArchitect(ai, usecase.LLMOptions{}, nil)
	if _, err := arch.Decompose(context.Background(), model.NarrativeInput{Story: "x"}); !errors.Is(err, domain.ErrPoolExhausted) {
		t.Fatalf("want ErrPoolExhausted, got %v", err)
	}
	if _, err := arch.Decompose(context.Background(), model.NarrativeInput{}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("empty input: want ErrInvalidArgument, got %v", err)
	}
}

func TestShotComposer_NormalizesShots(t *testing.T) {
	reply := `{"shots":[
	  {"id":"SC01-S01","scene_id":"SC01","shot_type":"wide","purpose":"establish","camera":{"horizontal":0,"vertical":0,"pan":0,"tilt":0,"roll":0,"zoom":0}},
	  {"id":"SC01-S02","scene_id":"SC01","shot_type":"close-up","duration_seconds":10,"purpose":"emotion","camera":{"zoom":-3}}
	]}`
	comp := usecase.NewShotComposer(newScriptedAI(map[string]string{adapter.TaskShots: reply}), usecase.LLMOptions{}, nil)
	shots, err := comp.Compose(context.Background(), []model.Scene{{ID: "SC01"}})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if shots[0].Camera != nil {
		t.Fatalf("all-zero camera should be dropped, got %+v", shots[0].Camera)
	}
	if shots[0].DurationSeconds != 5 || shots[1].DurationSeconds != 10 {
		t.Fatalf("durations = %v, %v", shots[0].DurationSeconds, shots[1].DurationSeconds)
	}
	if shots[1].Camera == nil || shots[1].Camera.Zoom != -3 {
		t.Fatalf("camera lost: %+v", shots[1].Camera)
	}
}

func TestShotComposer_RejectsBadReplies(t *testing.T) {
	cases := map[string]string{
		"unknown scene": `{"shots":[{"id":"X","scene_id":"SC09"}]}`,
		"camera range":  `{"shots":[{"id":"X","scene_id":"SC01","camera":{"pan":11}}]}`,
		"missing id":    `{"shots":[{"scene_id":"SC01"}]}`,
		"unknown field": `{"shots":[],"notes":"none"}`,
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			comp := usecase.NewShotComposer(newScriptedAI(map[string]string{adapter.TaskShots: reply}), usecase.LLMOptions{}, nil)
			if _, err := comp.Compose(context.Background(), []model.Scene{{ID: "SC01"}}); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestPromptBuilder_IsDeterministic(t *testing.T) {
	ava := model.Character{ID: "C01", Name: "Ava", Age: 28, Gender: "woman", Outfit: "canvas coat"}
	scenes := []model.Scene{{ID: "SC01", NarrativeSummary: "Ava returns home", CharacterIDs: []string{"C01"}, Characters: []model.Character{ava}}}
	shots := []model.Shot{
		{ID: "SC01-S01", SceneID: "SC01", ShotType: "wide shot", Purpose: "establish the town", DurationSeconds: 5},
		{ID: "SC01-S02", SceneID: "SC01", ShotType: "close-up", CharacterIDs: []string{"C01"}, ActionDescription: "Ava smiles", Camera: &model.CameraControl{Zoom: -2, Pan: 1}},
	}
	b := usecase.NewPromptBuilder([]string{"Cinematic", "24fps film look"}, []string{"CGI", "watermark"})

	first, err := b.Build(context.Background(), shots, scenes)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	second, _ := b.Build(context.Background(), shots, scenes)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("builder output differs between calls")
	}

	if got := first[0].Cinematography.CameraMovement; got != "static camera" {
		t.Fatalf("static shot movement = %q", got)
	}
	if first[0].Camera != nil {
		t.Fatal("static shot should carry no camera control")
	}
	text := first[1].Build()
	for _, want := range []string{"close-up", "tilt up, zoom in", "Ava, a 28-year-old woman, wearing canvas coat", "Ava smiles", "Scene: Ava returns home", "Cinematic, 24fps film look"} {
		if !strings.Contains(text, want) {
			t.Fatalf("prompt %q lacks %q", text, want)
		}
	}
	if first[1].Negative() != "CGI, watermark" {
		t.Fatalf("negative = %q", first[1].Negative())
	}

	if _, err := b.Build(context.Background(), []model.Shot{{ID: "X", SceneID: "nope"}}, scenes); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("unknown scene: want ErrInvalidArgument, got %v", err)
	}
}
