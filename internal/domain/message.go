package domain

import "time"

// ArtifactKind groups generated files for reporting.
type ArtifactKind string

const (
	ArtifactConfig    ArtifactKind = "config"
	ArtifactDecision  ArtifactKind = "decision"
	ArtifactCompose   ArtifactKind = "compose"
	ArtifactScript    ArtifactKind = "script"
	ArtifactDashboard ArtifactKind = "dashboard"
	ArtifactReport    ArtifactKind = "report"
	ArtifactPortal    ArtifactKind = "portal"
	ArtifactOther     ArtifactKind = "other"
)

// Artifact is a file written into the shared output directory.
type Artifact struct {
	Path      string       `json:"path"` // relative to the output dir
	Kind      ArtifactKind `json:"kind"`
	Agent     string       `json:"agent,omitempty"`
	Size      int64        `json:"size"`
	WrittenAt time.Time    `json:"writtenAt"`
}

// StageStatus is the outcome of one agent stage.
type StageStatus string

const (
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// StageResult summarizes one agent stage of a run.
type StageResult struct {
	Agent      string        `json:"agent"`
	Status     StageStatus   `json:"status"`
	Output     string        `json:"output,omitempty"`
	Error      string        `json:"error,omitempty"`
	ToolCalls  int           `json:"toolCalls"`
	Artifacts  []Artifact    `json:"artifacts,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
}

// RunStatus is the overall outcome of a pipeline run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is the persisted summary of a pipeline execution.
type Run struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"sessionId"` // SessionKey.String() of the shared session
	Task       string        `json:"task"`
	OutputDir  string        `json:"outputDir"`
	Provider   string        `json:"provider"`
	Status     RunStatus     `json:"status"`
	Error      string        `json:"error,omitempty"`
	Stages     []StageResult `json:"stages,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt,omitempty"`
}

// Duration returns the wall time of a finished run.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ArtifactCount totals the artifacts written across stages.
func (r Run) ArtifactCount() int {
	n := 0
	for _, s := range r.Stages {
		n += len(s.Artifacts)
	}
	return n
}
