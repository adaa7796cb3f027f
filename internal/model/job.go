package model

import "time"

// Job status
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Job is the in-memory record of one generation request, keyed by the
// upstream prompt id. Records live only for the lifetime of the process.
type Job struct {
	PromptID    string     `json:"prompt_id"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"current_step,omitempty"`
	Error       *string    `json:"error,omitempty"`
	ImagePath   string     `json:"image_path,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Pipeline steps reported through job snapshots and progress pushes.
const (
	StepQueued      = "queued"
	StepGenerating  = "generating"
	StepDownloading = "downloading"
	StepDone        = "done"
)

// JobListResponse is the body of GET /jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}
