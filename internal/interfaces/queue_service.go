// Package interfaces provides service interfaces for dependency injection.
package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/skillet/internal/models"
)

// QueueService hosts the named durable queues the pipeline fans out across.
// Implementations must be safe for concurrent use; Add may be called from
// any action while workers pull.
type QueueService interface {
	// Add enqueues a job whose first action is actionName. Adding a payload
	// whose job_id is already queued, in flight, or completed within the
	// dedup window is a no-op.
	Add(ctx context.Context, queueName, actionName string, payload interface{}, opts *models.EnqueueOptions) error

	// Pull blocks until a job is visible on the queue or the context ends.
	// Redelivered jobs carry an incremented AttemptNumber.
	Pull(ctx context.Context, queueName string) (*models.Job, error)

	// Ack removes a completed job and records its ID for dedup
	Ack(ctx context.Context, queueName, jobID string) error

	// Nack returns a job to the queue. A zero retryAfter makes it
	// immediately visible; fatal reasons drop the job instead.
	Nack(ctx context.Context, queueName, jobID, reason string, retryAfter time.Duration) error

	// Depth returns the number of jobs waiting on the queue
	Depth(ctx context.Context, queueName string) (int, error)

	// Close releases the underlying store
	Close() error
}

// Nack reasons understood by the queue
const (
	NackReasonFatal     = "fatal"
	NackReasonRetry     = "retry"
	NackReasonCancelled = "cancelled"
)
