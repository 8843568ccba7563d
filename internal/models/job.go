package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNoJob is returned when a queue has no visible jobs
var ErrNoJob = errors.New("no jobs in queue")

// Job is the immutable envelope delivered by a queue. The payload is the
// action-specific data; the worker routes on ActionName.
type Job struct {
	JobID         string          `json:"job_id"`
	QueueName     string          `json:"queue_name"`
	ActionName    string          `json:"action_name"`
	AttemptNumber int             `json:"attempt_number"` // 1-based, incremented per delivery
	Payload       json.RawMessage `json:"payload"`
	EnqueuedAt    time.Time       `json:"enqueued_at"`
}

// Validate ensures the job envelope can be routed
func (j *Job) Validate() error {
	if j.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if j.ActionName == "" {
		return fmt.Errorf("action name is required")
	}
	if j.AttemptNumber < 1 {
		return fmt.Errorf("attempt number must be >= 1, got %d", j.AttemptNumber)
	}
	return nil
}

// EnqueueOptions controls how a job is added to a queue
type EnqueueOptions struct {
	// Delay holds the job invisible for this duration after enqueue
	Delay time.Duration `json:"delay,omitempty"`
	// DedupWindow overrides the queue's default idempotency window
	DedupWindow time.Duration `json:"dedup_window,omitempty"`
}
