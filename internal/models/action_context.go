package models

import "time"

// ActionContext carries per-invocation metadata into every action.
// Created when a worker picks up a job, discarded when the pipeline returns.
type ActionContext struct {
	JobID         string    `json:"job_id"`
	AttemptNumber int       `json:"attempt_number"`
	RetryCount    int       `json:"retry_count"` // AttemptNumber - 1
	QueueName     string    `json:"queue_name"`
	WorkerName    string    `json:"worker_name"`
	Operation     string    `json:"operation"` // Action name currently executing
	StartTime     time.Time `json:"start_time"`
}

// NewActionContext builds the context for one job delivery
func NewActionContext(job *Job, workerName string) *ActionContext {
	return &ActionContext{
		JobID:         job.JobID,
		AttemptNumber: job.AttemptNumber,
		RetryCount:    job.AttemptNumber - 1,
		QueueName:     job.QueueName,
		WorkerName:    workerName,
		StartTime:     time.Now(),
	}
}
