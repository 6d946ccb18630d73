package model

import "time"

// JobStatus represents the overall state of an intake job.
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// StepStatus represents the state of a single job step.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepProcessing StepStatus = "processing"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// Job step names, in pipeline order.
const (
	StepEmailAnalysis = "email_analysis"
	StepExtraction    = "extraction"
	StepValidation    = "validation"
	StepHandoff       = "handoff"
)

// JobSteps returns the step names in execution order.
func JobSteps() []string {
	return []string{StepEmailAnalysis, StepExtraction, StepValidation, StepHandoff}
}

// JobStep tracks the progress of one pipeline step.
type JobStep struct {
	Status  StepStatus `json:"status"`
	Message string     `json:"message,omitempty"`
}

// Job is the tracked state of one intake request, queryable by ID while the
// request is processed asynchronously.
type Job struct {
	ID          string             `json:"job_id"`
	Status      JobStatus          `json:"status"`
	CurrentStep string             `json:"current_step,omitempty"`
	Steps       map[string]JobStep `json:"steps"`
	Result      *IntakeResult      `json:"result,omitempty"`
	Error       string             `json:"error,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}
