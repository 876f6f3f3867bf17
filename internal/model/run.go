package model

import "time"

// RunStatus represents the current state of a research run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is the persisted history record of one pipeline execution.
type Run struct {
	ID        string     `json:"id"`
	Query     string     `json:"query"`
	TopicKey  string     `json:"topic_key,omitempty"`
	Model     string     `json:"model,omitempty"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a run.
type RunResult struct {
	PrimaryChoice string        `json:"primary_choice,omitempty"`
	Entities      []string      `json:"entities"`
	SourceCount   int           `json:"source_count"`
	Usage         TokenUsage    `json:"usage"`
	Phases        []PhaseResult `json:"phases"`
	Report        string        `json:"report"`
	Error         string        `json:"error,omitempty"`
}

// RunPhase is the persisted record of one stage within a run.
type RunPhase struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Name      string       `json:"name"`
	Status    PhaseStatus  `json:"status"`
	Result    *PhaseResult `json:"result,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// PhaseStatus represents the current state of a pipeline stage.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusSkipped  PhaseStatus = "skipped"
	PhaseStatusFailed   PhaseStatus = "failed"
)

// PhaseResult holds the outcome of a pipeline stage.
type PhaseResult struct {
	Name       string         `json:"name"`
	Status     PhaseStatus    `json:"status"`
	Duration   int64          `json:"duration_ms"`
	TokenUsage TokenUsage     `json:"token_usage"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
