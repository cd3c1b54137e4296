package models

import "time"

// JobStatus is the discovery job state machine.
type JobStatus string

const (
	JobStatusAccepted    JobStatus = "accepted"
	JobStatusInProgress  JobStatus = "in_progress"
	JobStatusRetrying    JobStatus = "retrying"
	JobStatusVectorizing JobStatus = "vectorizing"
	JobStatusCompleted   JobStatus = "completed"
	JobStatusFailed      JobStatus = "failed"
	JobStatusTimeout     JobStatus = "timeout"
)

// Terminal reports whether the status ends the job lifecycle.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusTimeout:
		return true
	}
	return false
}

// Job is the in-memory record of a discovery run. The active-jobs map is
// the single source of truth for a job's outcome; jobs are retained for a
// window that depends on how the run went, then removed by the janitor.
type Job struct {
	ID                  string     `json:"job_id"`
	ConnectionID        string     `json:"connection_id"`
	Status              JobStatus  `json:"status"`
	StartedAt           time.Time  `json:"started_at"`
	FinishedAt          *time.Time `json:"finished_at,omitempty"`
	EstimatedCompletion time.Time  `json:"estimated_completion"`
	RetryCount          int        `json:"retry_count"`
	InitialMemoryBytes  uint64     `json:"initial_memory"`
	FinalMemoryBytes    uint64     `json:"final_memory,omitempty"`
	Error               string     `json:"error,omitempty"`
}

// Clone returns a snapshot safe to hand out of the jobs lock.
func (j *Job) Clone() *Job {
	cp := *j
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}
