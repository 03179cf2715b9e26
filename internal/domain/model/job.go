package model

import (
	"time"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusLeased    JobStatus = "leased"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRefunded  JobStatus = "refunded"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transition may leave this status.
// failed and cancelled are not terminal: both still owe the user a refund.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusRefunded
}

type JobType string

const (
	JobTypeGenerate JobType = "generate"
	JobTypeEdit     JobType = "edit"
)

// JobPayload is the decoded request description. It is validated once at the
// Dispatcher boundary and stored verbatim with the job; workers never
// re-interpret raw user input.
type JobPayload struct {
	Version      int     `json:"version"`
	Type         JobType `json:"type"`
	Prompt       string  `json:"prompt"`
	SourceImages []string `json:"source_images,omitempty"`
	Model        string  `json:"model"`
	Quality      string  `json:"quality"`
	Size         string  `json:"size"`
}

// Job is owned by the pipeline: created by the Dispatcher with tokens already
// reserved, mutated only through guarded status transitions.
type Job struct {
	ID             string
	UserID         string
	Cost           int64 // tokens reserved at admission
	Status         JobStatus
	Payload        JobPayload
	ResultRef      string // opaque pointer to stored output, set on success
	LeaseOwner     string
	LeaseExpiresAt *time.Time
	AttemptCount   int
	CancelRequested bool
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
