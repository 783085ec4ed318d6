package model

import (
	"fmt"
	"strings"

	"video-pipeline/internal/domain"
)

// NarrativeInput is the lore/music metadata a fresh run starts from.
type NarrativeInput struct {
	Title         string   `json:"title" yaml:"title"`
	Artist        string   `json:"artist,omitempty" yaml:"artist"`
	Genre         string   `json:"genre,omitempty" yaml:"genre"`
	Mood          []string `json:"mood,omitempty" yaml:"mood"`
	Setting       string   `json:"setting,omitempty" yaml:"setting"`
	Story         string   `json:"story" yaml:"story"`
	Lyrics        string   `json:"lyrics,omitempty" yaml:"lyrics"`
	TargetSeconds int      `json:"target_seconds" yaml:"target_seconds"`
}

type Character struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Age                 int    `json:"age"`
	Gender              string `json:"gender"`
	PhysicalDescription string `json:"physical_description"`
	Outfit              string `json:"outfit,omitempty"`
	FaceDetails         string `json:"face_details,omitempty"`
}

// Describe renders the character as a prompt fragment.
func (c Character) Describe() string {
	var b strings.Builder
	b.WriteString(c.Name)
	if c.Age > 0 || c.Gender != "" {
		b.WriteString(", a ")
		if c.Age > 0 {
			fmt.Fprintf(&b, "%d-year-old ", c.Age)
		}
		if c.Gender != "" {
			b.WriteString(c.Gender)
		} else {
			b.WriteString("person")
		}
	}
	for _, s := range []string{c.PhysicalDescription, c.FaceDetails} {
		if s = strings.TrimSpace(s); s != "" {
			b.WriteString(", ")
			b.WriteString(s)
		}
	}
	if o := strings.TrimSpace(c.Outfit); o != "" {
		b.WriteString(", wearing ")
		b.WriteString(o)
	}
	return b.String()
}

// Scene is the narrative-decomposition record. Characters appearing in the
// scene are embedded so the checkpoint is readable on its own.
type Scene struct {
	ID               string      `json:"id"`
	SceneType        string      `json:"scene_type"`
	Act              int         `json:"act"`
	DurationSeconds  float64     `json:"duration_seconds"`
	NarrativeSummary string      `json:"narrative_summary"`
	LocationID       string      `json:"location_id,omitempty"`
	CharacterIDs     []string    `json:"character_ids,omitempty"`
	Characters       []Character `json:"characters,omitempty"`
}

// Shot is the shot-composition record.
type Shot struct {
	ID                string         `json:"id"`
	SceneID           string         `json:"scene_id"`
	ShotType          string         `json:"shot_type"`
	DurationSeconds   float64        `json:"duration_seconds"`
	Purpose           string         `json:"purpose"`
	CharacterIDs      []string       `json:"character_ids,omitempty"`
	ActionDescription string         `json:"action_description,omitempty"`
	Camera            *CameraControl `json:"camera,omitempty"`
}

type Cinematography struct {
	ShotFraming    string `json:"shot_framing"`
	CameraAngle    string `json:"camera_angle,omitempty"`
	CameraMovement string `json:"camera_movement,omitempty"`
	LightingType   string `json:"lighting_type,omitempty"`
}

func (c Cinematography) parts() []string {
	return []string{c.ShotFraming, c.CameraAngle, c.CameraMovement, c.LightingType}
}

// Prompt is the prompt-assembly record.
type Prompt struct {
	ShotID           string          `json:"shot_id"`
	ShotType         string          `json:"shot_type"`
	Purpose          string          `json:"purpose"`
	Action           string          `json:"action,omitempty"`
	CharacterPrompts []string        `json:"character_prompts,omitempty"`
	SceneContext     string          `json:"scene_context,omitempty"`
	Cinematography   *Cinematography `json:"cinematography,omitempty"`
	StyleKeywords    []string        `json:"style_keywords,omitempty"`
	NegativePrompts  []string        `json:"negative_prompts,omitempty"`
	Camera           *CameraControl  `json:"camera,omitempty"`
	DurationSeconds  float64         `json:"duration_seconds,omitempty"`
}

// Build renders the text sent to the video provider. The output is a pure
// function of the record so resumed runs produce identical prompts.
func (p Prompt) Build() string {
	var parts []string
	if p.Cinematography != nil {
		var cine []string
		for _, s := range p.Cinematography.parts() {
			if s = strings.TrimSpace(s); s != "" {
				cine = append(cine, s)
			}
		}
		if len(cine) > 0 {
			parts = append(parts, strings.Join(cine, ", "))
		}
	} else if p.ShotType != "" {
		parts = append(parts, p.ShotType)
	}
	if len(p.CharacterPrompts) > 0 {
		parts = append(parts, strings.Join(p.CharacterPrompts, "; "))
	}
	for _, s := range []string{p.Action, p.Purpose} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	if s := strings.TrimSpace(p.SceneContext); s != "" {
		parts = append(parts, "Scene: "+s)
	}
	if len(p.StyleKeywords) > 0 {
		parts = append(parts, strings.Join(p.StyleKeywords, ", "))
	}
	return strings.Join(parts, ". ")
}

// Negative joins the negative prompts the way providers expect them.
func (p Prompt) Negative() string { return strings.Join(p.NegativePrompts, ", ") }

type VideoStatus string

const (
	VideoSucceeded VideoStatus = "succeeded"
	VideoFailed    VideoStatus = "failed"
)

// VideoResult is the video-generation record, one per prompt attempted.
type VideoResult struct {
	ShotID     string      `json:"shot_id"`
	Status     VideoStatus `json:"status"`
	JobID      string      `json:"job_id,omitempty"`
	Provider   string      `json:"provider,omitempty"`
	Credential string      `json:"credential,omitempty"`
	Path       string      `json:"path,omitempty"`
	MirrorURI  string      `json:"mirror_uri,omitempty"`
	Prompt     string      `json:"prompt"`
	Error      string      `json:"error,omitempty"`
	TimedOut   bool        `json:"timed_out,omitempty"`
}

// PromptPreview shortens prompt text for result records.
func PromptPreview(s string) string {
	const max = 200
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// ValidateShotID rejects ids that cannot name a file inside the run's
// videos directory. Ids come from model output and hand-edited checkpoints.
func ValidateShotID(id string) error {
	if strings.TrimSpace(id) == "" || strings.ContainsAny(id, "/\\\x00") || strings.Contains(id, "..") {
		return fmt.Errorf("%w: shot id %q is not a valid file name", domain.ErrValidation, id)
	}
	return nil
}
