package intake

import (
	"sync"
	"time"

	"github.com/kanzlei-labs/intake-service/internal/model"
)

// Tracker keeps per-job progress in memory so callers can poll while a
// request is processed asynchronously. Scope is per-process; a restart
// forgets unfinished jobs.
type Tracker struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
}

// NewTracker creates an empty job tracker.
func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[string]*model.Job)}
}

// Create initializes tracking for a new job ID.
func (t *Tracker) Create(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()
	steps := make(map[string]model.JobStep, len(model.JobSteps()))
	for _, name := range model.JobSteps() {
		steps[name] = model.JobStep{Status: model.StepPending}
	}
	t.jobs[jobID] = &model.Job{
		ID:        jobID,
		Status:    model.JobStatusProcessing,
		Steps:     steps,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// UpdateStep records progress on a single step.
func (t *Tracker) UpdateStep(jobID, step string, status model.StepStatus, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[jobID]
	if !ok {
		return
	}
	job.CurrentStep = step
	entry := job.Steps[step]
	entry.Status = status
	if message != "" {
		entry.Message = message
	}
	job.Steps[step] = entry
	job.UpdatedAt = time.Now().UTC()
}

// Complete marks a job finished with its result.
func (t *Tracker) Complete(jobID string, result *model.IntakeResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[jobID]
	if !ok {
		return
	}
	job.Status = model.JobStatusCompleted
	job.Result = result
	job.UpdatedAt = time.Now().UTC()
}

// Fail marks a job failed with a categorized error message.
func (t *Tracker) Fail(jobID, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[jobID]
	if !ok {
		return
	}
	job.Status = model.JobStatusFailed
	job.Error = errMsg
	job.UpdatedAt = time.Now().UTC()
}

// Get returns a copy of the tracked job, or nil if unknown.
func (t *Tracker) Get(jobID string) *model.Job {
	t.mu.RLock()
	defer t.mu.RUnlock()

	job, ok := t.jobs[jobID]
	if !ok {
		return nil
	}
	copied := *job
	copied.Steps = make(map[string]model.JobStep, len(job.Steps))
	for k, v := range job.Steps {
		copied.Steps[k] = v
	}
	return &copied
}
