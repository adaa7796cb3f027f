package service

import (
	"sort"
	"sync"
	"time"

	"github.com/comfybridge/api/internal/model"
)

// JobRegistry is an in-process view of recent generation jobs, keyed by
// prompt id. Nothing here is durable: a restart forgets every record, and
// the stored artifact remains the only state that outlives the process.
type JobRegistry struct {
	mu      sync.RWMutex
	jobs    map[string]*model.Job
	ttl     time.Duration
	maxJobs int
}

// NewJobRegistry creates a registry that keeps finished jobs around for ttl
// and never tracks more than maxJobs records at once.
func NewJobRegistry(ttl time.Duration, maxJobs int) *JobRegistry {
	return &JobRegistry{
		jobs:    make(map[string]*model.Job),
		ttl:     ttl,
		maxJobs: maxJobs,
	}
}

// Track records a freshly submitted job.
func (r *JobRegistry) Track(promptID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneLocked()

	r.jobs[promptID] = &model.Job{
		PromptID:    promptID,
		Status:      model.JobStatusQueued,
		CurrentStep: model.StepQueued,
		CreatedAt:   time.Now(),
	}
}

// UpdateProgress moves a job to running and updates its progress snapshot.
// A negative progress keeps the current value; an empty step keeps the
// current step. Returns a copy of the updated record, or nil for untracked
// ids.
func (r *JobRegistry) UpdateProgress(promptID string, progress int, step string) *model.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[promptID]
	if !ok {
		return nil
	}

	job.Status = model.JobStatusRunning
	if progress >= 0 {
		job.Progress = progress
	}
	if step != "" {
		job.CurrentStep = step
	}

	snapshot := *job
	return &snapshot
}

// Complete marks a job succeeded and records where its artifact landed.
func (r *JobRegistry) Complete(promptID, imagePath string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[promptID]
	if !ok {
		return
	}

	now := time.Now()
	job.Status = model.JobStatusSucceeded
	job.Progress = 100
	job.CurrentStep = model.StepDone
	job.ImagePath = imagePath
	job.CompletedAt = &now
}

// Fail marks a job failed with the error that ended it.
func (r *JobRegistry) Fail(promptID, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[promptID]
	if !ok {
		return
	}

	now := time.Now()
	job.Status = model.JobStatusFailed
	job.Error = &errMsg
	job.CompletedAt = &now
}

// Get returns a copy of one tracked job.
func (r *JobRegistry) Get(promptID string) (model.Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[promptID]
	if !ok {
		return model.Job{}, false
	}
	return *job, true
}

// List returns copies of all tracked jobs, newest first.
func (r *JobRegistry) List() []model.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// pruneLocked drops finished jobs past their ttl, then enforces the record
// cap by evicting the oldest entries. Callers hold the write lock.
func (r *JobRegistry) pruneLocked() {
	now := time.Now()
	for id, job := range r.jobs {
		if job.CompletedAt != nil && now.Sub(*job.CompletedAt) > r.ttl {
			delete(r.jobs, id)
		}
	}

	if len(r.jobs) < r.maxJobs {
		return
	}

	ids := make([]string, 0, len(r.jobs))
	for id := range r.jobs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return r.jobs[ids[i]].CreatedAt.Before(r.jobs[ids[j]].CreatedAt)
	})
	for _, id := range ids[:len(r.jobs)-r.maxJobs+1] {
		delete(r.jobs, id)
	}
}
