package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"video-pipeline/internal/domain"
	"video-pipeline/internal/domain/model"
	"video-pipeline/internal/domain/ports/adapter"
	ucport "video-pipeline/internal/domain/ports/usecase"
	"video-pipeline/internal/infra/logging"
)

// Compile-time checks
var (
	_ ucport.SceneArchitect = (*sceneArchitectUC)(nil)
	_ ucport.ShotComposer   = (*shotComposerUC)(nil)
	_ ucport.PromptBuilder  = (*promptBuilderUC)(nil)
)

const sceneSystemPrompt = `You are a film director's assistant. Break the story in the user message
into scenes for a short music video. Reply with one JSON object:
{"characters":[{"id","name","age","gender","physical_description","outfit","face_details"}],
 "scenes":[{"id","scene_type","act","duration_seconds","narrative_summary","location_id","character_ids"}]}
Scene ids look like SC01, character ids like C01. Durations add up to target_seconds.
Do not add any other fields.`

const shotSystemPrompt = `You are a cinematographer. Split every scene in the user message into shots.
Reply with one JSON object:
{"shots":[{"id","scene_id","shot_type","duration_seconds","purpose","character_ids","action_description",
 "camera":{"horizontal","vertical","pan","tilt","roll","zoom"}}]}
Shot ids look like SC01-S01. Each duration is 5 or 10 seconds. Camera axes range from -10 to 10
and the camera object is omitted for a static shot. Do not add any other fields.`

// LLMOptions tunes the storyboard calls.
type LLMOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

type sceneArchitectUC struct {
	ai  adapter.AIServiceAdapter
	opt LLMOptions
	log *zerolog.Logger
}

func NewSceneArchitect(ai adapter.AIServiceAdapter, opt LLMOptions, logger *zerolog.Logger) *sceneArchitectUC {
	return &sceneArchitectUC{ai: ai, opt: opt, log: orNop(logger)}
}

func (u *sceneArchitectUC) Decompose(ctx context.Context, in model.NarrativeInput) ([]model.Scene, error) {
	if strings.TrimSpace(in.Story) == "" && strings.TrimSpace(in.Lyrics) == "" {
		return nil, fmt.Errorf("%w: narrative input has neither story nor lyrics", domain.ErrInvalidArgument)
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	var out struct {
		Characters []model.Character `json:"characters"`
		Scenes     []model.Scene     `json:"scenes"`
	}
	if err := chatJSON(ctx, u.ai, u.opt, adapter.TaskScenes, sceneSystemPrompt, string(payload), &out); err != nil {
		return nil, err
	}
	if len(out.Scenes) == 0 {
		return nil, fmt.Errorf("%w: scene reply has no scenes", domain.ErrProvider)
	}

	chars := make(map[string]model.Character, len(out.Characters))
	for _, c := range out.Characters {
		chars[c.ID] = c
	}
	seen := map[string]struct{}{}
	for i := range out.Scenes {
		sc := &out.Scenes[i]
		if sc.ID == "" {
			return nil, fmt.Errorf("%w: scene #%d has no id", domain.ErrProvider, i+1)
		}
		if _, dup := seen[sc.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate scene id %q", domain.ErrProvider, sc.ID)
		}
		seen[sc.ID] = struct{}{}
		sc.Characters = sc.Characters[:0]
		for _, id := range sc.CharacterIDs {
			c, ok := chars[id]
			if !ok {
				return nil, fmt.Errorf("%w: scene %s references unknown character %q", domain.ErrProvider, sc.ID, id)
			}
			sc.Characters = append(sc.Characters, c)
		}
	}
	logging.With(ctx, u.log).Info().Int("scenes", len(out.Scenes)).Int("characters", len(out.Characters)).Msg("narrative decomposed")
	return out.Scenes, nil
}

type shotComposerUC struct {
	ai  adapter.AIServiceAdapter
	opt LLMOptions
	log *zerolog.Logger
}

func NewShotComposer(ai adapter.AIServiceAdapter, opt LLMOptions, logger *zerolog.Logger) *shotComposerUC {
	return &shotComposerUC{ai: ai, opt: opt, log: orNop(logger)}
}

func (u *shotComposerUC) Compose(ctx context.Context, scenes []model.Scene) ([]model.Shot, error) {
	if len(scenes) == 0 {
		return nil, fmt.Errorf("%w: no scenes to compose", domain.ErrInvalidArgument)
	}
	payload, err := json.Marshal(map[string]any{"scenes": scenes})
	if err != nil {
		return nil, err
	}
	var out struct {
		Shots []model.Shot `json:"shots"`
	}
	if err := chatJSON(ctx, u.ai, u.opt, adapter.TaskShots, shotSystemPrompt, string(payload), &out); err != nil {
		return nil, err
	}
	if len(out.Shots) == 0 {
		return nil, fmt.Errorf("%w: shot reply has no shots", domain.ErrProvider)
	}

	known := make(map[string]struct{}, len(scenes))
	for _, sc := range scenes {
		known[sc.ID] = struct{}{}
	}
	seen := map[string]struct{}{}
	for i := range out.Shots {
		sh := &out.Shots[i]
		if sh.ID == "" {
			return nil, fmt.Errorf("%w: shot #%d has no id", domain.ErrProvider, i+1)
		}
		if _, dup := seen[sh.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate shot id %q", domain.ErrProvider, sh.ID)
		}
		seen[sh.ID] = struct{}{}
		if _, ok := known[sh.SceneID]; !ok {
			return nil, fmt.Errorf("%w: shot %s references unknown scene %q", domain.ErrProvider, sh.ID, sh.SceneID)
		}
		if sh.Camera != nil {
			if err := sh.Camera.Validate(); err != nil {
				return nil, fmt.Errorf("shot %s: %w", sh.ID, err)
			}
			sh.Camera = sh.Camera.Movement()
		}
		if sh.DurationSeconds <= 0 {
			sh.DurationSeconds = 5
		}
	}
	logging.With(ctx, u.log).Info().Int("scenes", len(scenes)).Int("shots", len(out.Shots)).Msg("shots composed")
	return out.Shots, nil
}

// chatJSON sends one JSON-mode request and decodes the reply into out,
// rejecting fields out does not declare.
func chatJSON(ctx context.Context, ai adapter.AIServiceAdapter, opt LLMOptions, task, system, user string, out any) error {
	resp, err := ai.Chat(ctx, adapter.ChatRequest{
		Task:            task,
		Model:           opt.Model,
		JSON:            true,
		Temperature:     opt.Temperature,
		MaxOutputTokens: opt.MaxTokens,
		Messages: []adapter.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return fmt.Errorf("%s llm call: %w", task, err)
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(stripFence(resp.Text))))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s reply: %v", domain.ErrProvider, task, err)
	}
	return nil
}

// stripFence removes a markdown code fence some models wrap JSON in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// promptBuilderUC turns shots into provider prompts without any model call,
// so the same checkpoints always produce the same prompts.
type promptBuilderUC struct {
	style     []string
	negatives []string
}

func NewPromptBuilder(styleKeywords, negativePrompts []string) *promptBuilderUC {
	return &promptBuilderUC{
		style:     append([]string(nil), styleKeywords...),
		negatives: append([]string(nil), negativePrompts...),
	}
}

func (b *promptBuilderUC) Build(ctx context.Context, shots []model.Shot, scenes []model.Scene) ([]model.Prompt, error) {
	if len(shots) == 0 {
		return nil, fmt.Errorf("%w: no shots to build prompts for", domain.ErrInvalidArgument)
	}
	byID := make(map[string]model.Scene, len(scenes))
	for _, sc := range scenes {
		byID[sc.ID] = sc
	}

	out := make([]model.Prompt, 0, len(shots))
	for _, sh := range shots {
		sc, ok := byID[sh.SceneID]
		if !ok {
			return nil, fmt.Errorf("%w: shot %s references unknown scene %q", domain.ErrInvalidArgument, sh.ID, sh.SceneID)
		}
		var chars []string
		for _, id := range sh.CharacterIDs {
			for _, c := range sc.Characters {
				if c.ID == id {
					chars = append(chars, c.Describe())
					break
				}
			}
		}
		out = append(out, model.Prompt{
			ShotID:           sh.ID,
			ShotType:         sh.ShotType,
			Purpose:          sh.Purpose,
			Action:           sh.ActionDescription,
			CharacterPrompts: chars,
			SceneContext:     sc.NarrativeSummary,
			Cinematography: &model.Cinematography{
				ShotFraming:    sh.ShotType,
				CameraMovement: describeCamera(sh.Camera),
			},
			StyleKeywords:   append([]string(nil), b.style...),
			NegativePrompts: append([]string(nil), b.negatives...),
			Camera:          sh.Camera.Movement(),
			DurationSeconds: sh.DurationSeconds,
		})
	}
	return out, nil
}

// describeCamera names the dominant moves of c for the prompt text.
func describeCamera(c *model.CameraControl) string {
	if c.Movement() == nil {
		return "static camera"
	}
	moves := []struct {
		v        float64
		neg, pos string
	}{
		{c.Horizontal, "truck left", "truck right"},
		{c.Vertical, "pedestal down", "pedestal up"},
		{c.Pan, "tilt down", "tilt up"},
		{c.Tilt, "pan left", "pan right"},
		{c.Roll, "roll counter-clockwise", "roll clockwise"},
		{c.Zoom, "zoom in", "zoom out"},
	}
	var parts []string
	for _, m := range moves {
		switch {
		case m.v < 0:
			parts = append(parts, m.neg)
		case m.v > 0:
			parts = append(parts, m.pos)
		}
	}
	return strings.Join(parts, ", ")
}

func orNop(logger *zerolog.Logger) *zerolog.Logger {
	if logger == nil {
		return logging.Nop()
	}
	return logger
}
