package model

import "time"

type StageReport struct {
	Stage      Stage         `json:"stage"`
	State      StageState    `json:"state"`
	Records    int           `json:"records"`
	Loaded     bool          `json:"loaded,omitempty"` // records came from an earlier checkpoint
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at,omitempty"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// RunReport summarizes one orchestrator invocation.
type RunReport struct {
	RunID       string         `json:"run_id"`
	Stages      []*StageReport `json:"stages"`
	Videos      []VideoResult  `json:"videos,omitempty"`
	FailedItems []VideoResult  `json:"failed_items,omitempty"`
}

// NewRunReport starts every stage as pending.
func NewRunReport(runID string) *RunReport {
	r := &RunReport{RunID: runID}
	for _, s := range Stages {
		r.Stages = append(r.Stages, &StageReport{Stage: s, State: StageStatePending})
	}
	return r
}

func (r *RunReport) Stage(s Stage) *StageReport {
	for _, st := range r.Stages {
		if st.Stage == s {
			return st
		}
	}
	return nil
}

func (r *RunReport) State(s Stage) StageState {
	if st := r.Stage(s); st != nil {
		return st.State
	}
	return StageStatePending
}

// Succeeded counts videos generated successfully.
func (r *RunReport) Succeeded() int {
	n := 0
	for _, v := range r.Videos {
		if v.Status == VideoSucceeded {
			n++
		}
	}
	return n
}
