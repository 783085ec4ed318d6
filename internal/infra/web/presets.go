package web

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"video-pipeline/internal/domain"
	"video-pipeline/internal/domain/model"
)

type CameraPreset struct {
	ID          string              `yaml:"id" json:"id"`
	Name        string              `yaml:"name" json:"name"`
	Description string              `yaml:"description,omitempty" json:"description,omitempty"`
	Camera      model.CameraControl `yaml:"camera" json:"camera"`
}

type LightingPreset struct {
	ID             string   `yaml:"id" json:"id"`
	Name           string   `yaml:"name" json:"name"`
	Description    string   `yaml:"description,omitempty" json:"description,omitempty"`
	PromptFragment string   `yaml:"prompt_fragment" json:"prompt_fragment"`
	EmotionalTags  []string `yaml:"emotional_tags,omitempty" json:"emotional_tags,omitempty"`
}

// Presets is the payload of GET /api/presets.
type Presets struct {
	Camera   []CameraPreset   `yaml:"camera" json:"camera"`
	Lighting []LightingPreset `yaml:"lighting" json:"lighting"`
}

// LoadPresets reads the preset file. Every camera preset must stay within
// the provider axis limits.
func LoadPresets(path string) (*Presets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}
	var p Presets
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse presets %s: %w", path, err)
	}
	seen := make(map[string]struct{}, len(p.Camera))
	for _, c := range p.Camera {
		if c.ID == "" {
			return nil, fmt.Errorf("%w: camera preset without id", domain.ErrValidation)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate camera preset %q", domain.ErrValidation, c.ID)
		}
		seen[c.ID] = struct{}{}
		if err := c.Camera.Validate(); err != nil {
			return nil, fmt.Errorf("camera preset %q: %w", c.ID, err)
		}
	}
	for _, l := range p.Lighting {
		if l.ID == "" || l.PromptFragment == "" {
			return nil, fmt.Errorf("%w: lighting preset %q needs id and prompt_fragment", domain.ErrValidation, l.ID)
		}
	}
	if p.Camera == nil {
		p.Camera = []CameraPreset{}
	}
	if p.Lighting == nil {
		p.Lighting = []LightingPreset{}
	}
	return &p, nil
}
