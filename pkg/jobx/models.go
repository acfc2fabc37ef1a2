package jobx

import (
	"encoding/json"
	"time"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

const (
	DefaultQueue      = "default"
	DefaultMaxRetries = 3
)

// JobInfo is a job as stored in the backend.
type JobInfo struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"payload"`
	Status     JobStatus       `json:"status"`
	Error      string          `json:"error,omitempty"`
	MaxRetries int             `json:"max_retries"`
	Attempts   int             `json:"attempts"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Decode unmarshals the payload into v
func (j *JobInfo) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return ErrInvalidJob("payload does not match job type").
			WithDetail("job_type", j.Type).
			WithDetail("error", err.Error())
	}
	return nil
}

// CanRetry reports whether another attempt is allowed after the current one.
// MaxRetries counts retries, so a job runs at most MaxRetries+1 times.
func (j *JobInfo) CanRetry() bool {
	return j.Attempts <= j.MaxRetries
}
