package model

import (
	"encoding/json"
	"fmt"
	"time"

	"video-pipeline/internal/domain"
)

// Stage is one step of the content pipeline. Order matters.
type Stage string

const (
	StageNarrative Stage = "narrative-decomposition"
	StageShots     Stage = "shot-composition"
	StagePrompts   Stage = "prompt-assembly"
	StageVideo     Stage = "video-generation"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageNarrative, StageShots, StagePrompts, StageVideo}

// Index returns the position of s in Stages, or -1.
func (s Stage) Index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

func (s Stage) Valid() bool { return s.Index() >= 0 }

// Predecessors returns every stage that must be completed before s.
func (s Stage) Predecessors() []Stage {
	i := s.Index()
	if i <= 0 {
		return nil
	}
	return Stages[:i]
}

// ParseStage accepts canonical names and the CLI aliases.
func ParseStage(v string) (Stage, error) {
	switch v {
	case "stage-1", "narrative", string(StageNarrative):
		return StageNarrative, nil
	case "stage-2", "shots", string(StageShots):
		return StageShots, nil
	case "stage-3", "prompts", string(StagePrompts):
		return StagePrompts, nil
	case "video", string(StageVideo):
		return StageVideo, nil
	}
	return "", fmt.Errorf("%w: unknown stage %q", domain.ErrInvalidArgument, v)
}

type StageState string

const (
	StageStatePending   StageState = "pending"
	StageStateRunning   StageState = "running"
	StageStateCompleted StageState = "completed"
	StageStateFailed    StageState = "failed"
)

// CheckpointVersion is bumped when the record envelope changes shape.
const CheckpointVersion = 1

// Checkpoint is the durable output of one stage for one run.
type Checkpoint struct {
	RunID     string          `json:"run_id"`
	Stage     Stage           `json:"stage"`
	Version   int             `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	Records   json.RawMessage `json:"records"`
}

// NewCheckpoint serializes records into a checkpoint envelope.
func NewCheckpoint(runID string, stage Stage, records any, now time.Time) (*Checkpoint, error) {
	raw, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode %s records: %w", stage, err)
	}
	return &Checkpoint{RunID: runID, Stage: stage, Version: CheckpointVersion, CreatedAt: now.UTC(), Records: raw}, nil
}

// Decode unmarshals the records into out.
func (c *Checkpoint) Decode(out any) error {
	if len(c.Records) == 0 {
		return fmt.Errorf("%w: %s checkpoint has no records", domain.ErrNotFound, c.Stage)
	}
	if err := json.Unmarshal(c.Records, out); err != nil {
		return fmt.Errorf("decode %s records: %w", c.Stage, err)
	}
	return nil
}

// CheckpointInfo describes a stored checkpoint without its records.
type CheckpointInfo struct {
	RunID     string    `json:"run_id"`
	Stage     Stage     `json:"stage"`
	CreatedAt time.Time `json:"created_at"`
	Records   int       `json:"records"`
}

// RecordCount is the number of records when they form a JSON array, else 1.
func (c *Checkpoint) RecordCount() int {
	var items []json.RawMessage
	if err := json.Unmarshal(c.Records, &items); err != nil {
		if len(c.Records) == 0 {
			return 0
		}
		return 1
	}
	return len(items)
}

// Info summarizes c.
func (c *Checkpoint) Info() CheckpointInfo {
	return CheckpointInfo{RunID: c.RunID, Stage: c.Stage, CreatedAt: c.CreatedAt, Records: c.RecordCount()}
}
